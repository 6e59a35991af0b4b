// Package resume derives a small structured summary from resume text.
package resume

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
)

const (
	NoEmail = "No email found"

	DefaultPreviewChars = 1500

	msgInvalid   = "No text provided or text is invalid."
	msgNoContent = "Text contains no content after stripping whitespace."
	msgInternal  = "An error occurred during text parsing: %v"
)

type Resume struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Skills  []string `json:"skills"`
	RawText string   `json:"raw_text"`
}

// Outcome is either a parsed Resume or a Failure.
type Outcome struct {
	Resume  *Resume
	Failure *extract.Failure
}

func (o Outcome) OK() bool { return o.Failure == nil && o.Resume != nil }

func succeeded(r *Resume) Outcome         { return Outcome{Resume: r} }
func failed(f *extract.Failure) Outcome { return Outcome{Failure: f} }

type Parser struct {
	vocab        *Vocabulary
	previewChars int
	logger       *zap.Logger
}

type Option func(*Parser)

func WithVocabulary(v *Vocabulary) Option {
	return func(p *Parser) {
		if v != nil {
			p.vocab = v
		}
	}
}

func WithPreviewChars(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.previewChars = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{
		previewChars: DefaultPreviewChars,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.vocab == nil {
		p.vocab = MustDefault()
	}
	return p
}

// Parse passes extraction failures through unchanged and parses text results.
func (p *Parser) Parse(in extract.Result) Outcome {
	if f, ok := in.Failure(); ok {
		p.logger.Warn("parsing skipped due to extraction error", zap.String("error", f.Reason))
		return failed(f)
	}
	text, _ := in.Text()
	return p.ParseText(text)
}

func (p *Parser) ParseText(text string) (out Outcome) {
	if text == "" || !utf8.ValidString(text) {
		p.logger.Warn("parsing failed: no valid text provided")
		return failed(extract.ClientFailure(msgInvalid))
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("resume parsing error", zap.Any("panic", r), zap.Stack("stack"))
			out = failed(extract.ClientFailure(msgInternal, r))
		}
	}()

	lines := nonEmptyLines(text)
	if len(lines) == 0 {
		p.logger.Warn("parsing failed: text contains no non-empty lines")
		return failed(extract.ClientFailure(msgNoContent))
	}

	r := &Resume{
		Name:    lines[0],
		Email:   findEmailLine(lines),
		Skills:  p.vocab.Match(strings.ToLower(text)),
		RawText: preview(text, p.previewChars),
	}

	p.logger.Info("parsed resume",
		zap.String("name", r.Name),
		zap.String("email", r.Email),
		zap.Int("skills_found", len(r.Skills)),
	)
	return succeeded(r)
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// findEmailLine returns the first line with an '@' whose last '@'-segment
// contains a dot. The whole line is returned, not an isolated address.
func findEmailLine(lines []string) string {
	for _, line := range lines {
		at := strings.LastIndex(line, "@")
		if at >= 0 && strings.Contains(line[at+1:], ".") {
			return line
		}
	}
	return NoEmail
}

// preview returns the first n characters (runes) of text.
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
