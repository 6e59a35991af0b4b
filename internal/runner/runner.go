// Package runner executes external tools (poppler, tesseract) with bounded
// output so a hostile input file cannot exhaust memory.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ErrOutputLimit is returned when a command writes more than the stdout cap.
var ErrOutputLimit = errors.New("output exceeds limit")

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Exec runs commands on the host.
type Exec struct {
	// MaxStdoutBytes caps captured stdout; zero means 50 MiB.
	MaxStdoutBytes int64
	Logger         *zap.Logger
}

func NewExec(maxStdoutBytes int64, logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{MaxStdoutBytes: maxStdoutBytes, Logger: logger}
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	limit := e.MaxStdoutBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	out, errb, err := captureLimited(cmd, limit)
	dur := time.Since(start)

	if err != nil {
		logger.Error("exec failed",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Error(err),
			zap.String("stderr", truncate(string(errb), 8<<10)),
		)
	} else {
		logger.Debug("exec ok",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Int("stdout_bytes", len(out)),
			zap.Int("stderr_bytes", len(errb)),
		)
	}
	return out, errb, err
}

// captureLimited runs cmd reading at most maxBytes of stdout. Stderr is
// captured fully (usually small) for error reporting.
func captureLimited(cmd *exec.Cmd, maxBytes int64) ([]byte, []byte, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start: %w", err)
	}

	lr := io.LimitReader(stdoutPipe, maxBytes+1)
	outBytes, readErr := io.ReadAll(lr)
	if readErr != nil || int64(len(outBytes)) > maxBytes {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, stderr.Bytes(), fmt.Errorf("read stdout: %w", readErr)
	}
	if int64(len(outBytes)) > maxBytes {
		return nil, stderr.Bytes(), ErrOutputLimit
	}
	if waitErr != nil {
		return outBytes, stderr.Bytes(), waitErr
	}
	return outBytes, stderr.Bytes(), nil
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
	return s[:cut] + "...(truncated)"
}
