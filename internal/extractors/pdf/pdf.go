package pdf

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
)

const (
	msgNoText        = "No text content found in the PDF."
	msgProcessFailed = "Failed to process PDF file: %v"
)

// PageSource returns the text of every page in document order. Pages without
// a text layer are returned as empty strings.
type PageSource interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
	Name() string
}

type Extractor struct {
	pages  PageSource
	logger *zap.Logger
}

func New(pages PageSource, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{pages: pages, logger: logger}
}

func (e *Extractor) Name() string { return "document/pdf" }

func (e *Extractor) SupportedExtensions() []string { return []string{".pdf"} }

func (e *Extractor) Extract(ctx context.Context, path string) (res extract.Result) {
	log := e.logger.With(zap.String("path", path), zap.String("backend", e.pages.Name()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pdf extraction panic", zap.Any("panic", r), zap.Stack("stack"))
			res = extract.Fail(extract.ServerFailure(msgProcessFailed, r))
		}
	}()

	pages, err := e.pages.PageTexts(ctx, path)
	if err != nil {
		log.Error("pdf extraction error", zap.Error(err))
		return extract.Fail(extract.ServerFailure(msgProcessFailed, err))
	}

	text := joinPages(pages)
	res = extract.TextOr(text, msgNoText)
	if res.IsFailure() {
		log.Warn("no text could be extracted from pdf", zap.Int("pages", len(pages)))
		return res
	}

	words, chars := extract.BuildCounts(text)
	log.Info("extracted text from pdf",
		zap.Int("pages", len(pages)),
		zap.Int("words", words),
		zap.Int("chars", chars),
	)
	return res
}

// joinPages appends a newline after every page that contributed text.
func joinPages(pages []string) string {
	var b strings.Builder
	for _, p := range pages {
		if p == "" {
			continue
		}
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

// NewSource picks a page source by backend name.
func NewSource(backend string, poppler PopplerConfig, logger *zap.Logger) (PageSource, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "native":
		return NewNative(), nil
	case "poppler":
		return NewPoppler(poppler, logger), nil
	default:
		return nil, fmt.Errorf("unknown pdf backend %q", backend)
	}
}
