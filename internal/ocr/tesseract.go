package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/toricodesthings/resume-analysis-service/internal/runner"
)

type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "eng"
	TessdataDir string
	PSM         int // page segmentation mode; 0 keeps the engine default
	OEM         int // engine mode; 0 keeps the engine default
	Timeout     time.Duration
	Runner      runner.Runner
}

// Tesseract runs the tesseract CLI and reads recognized text from stdout.
type Tesseract struct {
	cfg    TesseractConfig
	logger *zap.Logger
}

func NewTesseract(cfg TesseractConfig, logger *zap.Logger) *Tesseract {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Runner == nil {
		cfg.Runner = runner.NewExec(10<<20, logger)
	}
	return &Tesseract{cfg: cfg, logger: logger}
}

func (t *Tesseract) args(path string) []string {
	// tesseract <file> stdout -l <lang>
	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	out, stderr, err := t.cfg.Runner.Run(ctx, t.cfg.Binary, t.args(path)...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tesseract timeout after %s", t.cfg.Timeout)
		}
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return "", fmt.Errorf("tesseract: %s", truncate(msg, 300))
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
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
