package pdf

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/toricodesthings/resume-analysis-service/internal/runner"
)

type PopplerConfig struct {
	PDFInfoBinary    string
	PDFToTextBinary  string
	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration
	MaxPageWorkers   int
	Runner           runner.Runner
}

// Sensible defaults if you pass zeros.
func (c PopplerConfig) withDefaults(logger *zap.Logger) PopplerConfig {
	out := c
	if out.PDFInfoBinary == "" {
		out.PDFInfoBinary = "pdfinfo"
	}
	if out.PDFToTextBinary == "" {
		out.PDFToTextBinary = "pdftotext"
	}
	if out.PDFInfoTimeout <= 0 {
		out.PDFInfoTimeout = 3 * time.Second
	}
	if out.PDFToTextTimeout <= 0 {
		out.PDFToTextTimeout = 10 * time.Second
	}
	if out.MaxPageWorkers <= 0 {
		out.MaxPageWorkers = runtime.NumCPU()
	}
	if out.Runner == nil {
		out.Runner = runner.NewExec(10<<20, logger)
	}
	return out
}

// Poppler extracts page text with pdfinfo + pdftotext.
type Poppler struct {
	cfg    PopplerConfig
	logger *zap.Logger
}

func NewPoppler(cfg PopplerConfig, logger *zap.Logger) *Poppler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poppler{cfg: cfg.withDefaults(logger), logger: logger}
}

func (p *Poppler) Name() string { return "poppler" }

var pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// Info is what pdfinfo reports about a document. Files that need a user
// password fail inside pdfinfo and surface through classifyErr.
type Info struct {
	Pages int
}

// Info runs pdfinfo once and extracts the page count.
func (p *Poppler) Info(ctx context.Context, path string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.PDFInfoTimeout)
	defer cancel()

	out, stderr, err := p.cfg.Runner.Run(ctx, p.cfg.PDFInfoBinary, path)
	if err != nil {
		return Info{}, p.classifyErr("pdfinfo", err, ctx, string(stderr), 0)
	}

	pages, err := parsePages(string(out))
	if err != nil {
		return Info{}, err
	}
	return Info{Pages: pages}, nil
}

// PageText extracts text for one page.
func (p *Poppler) PageText(ctx context.Context, path string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("invalid page number: %d (must be >= 1)", page)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PDFToTextTimeout)
	defer cancel()

	out, stderr, err := p.cfg.Runner.Run(ctx,
		p.cfg.PDFToTextBinary,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-layout",
		"-nopgbrk",
		"-enc", "UTF-8",
		path,
		"-",
	)
	if err != nil {
		return "", p.classifyErr("pdftotext", err, ctx, string(stderr), page)
	}
	return string(out), nil
}

// PageTexts extracts all pages concurrently and returns them in document order.
// The first page failure aborts the rest.
func (p *Poppler) PageTexts(ctx context.Context, path string) ([]string, error) {
	info, err := p.Info(ctx, path)
	if err != nil {
		return nil, err
	}

	texts := make([]string, info.Pages)
	if info.Pages == 0 {
		return texts, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(p.cfg.MaxPageWorkers, info.Pages))

	for i := range texts {
		i := i
		g.Go(func() error {
			text, err := p.PageText(gctx, path, i+1)
			if err != nil {
				return err
			}
			texts[i] = strings.TrimRight(text, " \t\r\n\f")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// --- internals ---

func parsePages(pdfinfoOut string) (int, error) {
	matches := pageCountRegex.FindStringSubmatch(pdfinfoOut)
	if len(matches) == 2 {
		n, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}

	// Fallback: scan lines to handle formatting variations
	sc := bufio.NewScanner(strings.NewReader(pdfinfoOut))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(strings.ToLower(line), "pages:") {
			fields := strings.Fields(line[len("Pages:"):])
			if len(fields) == 0 {
				break
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
			}
			return validatePages(n)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("pdfinfo: scan failed: %w", err)
	}

	return 0, fmt.Errorf("pdfinfo: pages field not found in output")
}

func validatePages(count int) (int, error) {
	if count < 0 || count > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count: %d", count)
	}
	return count, nil
}

// isHelpOrUsageOutput returns true when stderr looks like a poppler
// usage / help dump rather than an actual processing error.
func isHelpOrUsageOutput(stderr string) bool {
	return strings.Contains(stderr, "version ") && strings.Contains(stderr, "Usage:")
}

func (p *Poppler) classifyErr(tool string, err error, ctx context.Context, stderr string, page int) error {
	where := tool
	if page > 0 {
		where = fmt.Sprintf("%s page %d", tool, page)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timeout", where)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s canceled", where)
	}
	if errors.Is(err, runner.ErrOutputLimit) {
		return fmt.Errorf("%s: extracted text too large", where)
	}

	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Errorf("%s failed: %w", where, err)
	}

	p.logger.Warn("poppler stderr", zap.String("tool", tool), zap.Int("page", page), zap.String("stderr", truncate(stderr, 500)))

	switch {
	case isHelpOrUsageOutput(stderr):
		return fmt.Errorf("%s failed (bad invocation)", where)
	case containsAny(stderr, "Incorrect password", "Command Line Error: Incorrect password"):
		return fmt.Errorf("PDF is password protected")
	case containsAny(stderr, "PDF file is damaged", "Syntax Error", "Couldn't find trailer dictionary", "May not be a PDF file"):
		return fmt.Errorf("PDF file is damaged or corrupted")
	case strings.Contains(stderr, "I/O Error") && strings.Contains(stderr, "Couldn't open file"):
		return fmt.Errorf("unable to open PDF")
	}
	return fmt.Errorf("%s failed: %s", where, truncate(stderr, 200))
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
