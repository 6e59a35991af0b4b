package pdf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
)

type fakeSource struct {
	pages []string
	err   error
	panic any
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) PageTexts(ctx context.Context, path string) ([]string, error) {
	if f.panic != nil {
		panic(f.panic)
	}
	return f.pages, f.err
}

func TestExtractJoinsPagesInOrder(t *testing.T) {
	e := New(&fakeSource{pages: []string{"Jane Doe", "", "Skills: go"}}, nil)

	res := e.Extract(context.Background(), "resume.pdf")
	text, ok := res.Text()
	if !ok {
		t.Fatalf("expected text result")
	}
	if text != "Jane Doe\nSkills: go\n" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestExtractNoTextIsClientFailure(t *testing.T) {
	e := New(&fakeSource{pages: []string{"", "  \n "}}, nil)

	res := e.Extract(context.Background(), "scan.pdf")
	f, ok := res.Failure()
	if !ok {
		t.Fatalf("expected failure")
	}
	if f.Reason != "No text content found in the PDF." {
		t.Fatalf("unexpected reason: %q", f.Reason)
	}
	if f.Class != extract.ClassClient {
		t.Fatalf("expected client class, got %s", f.Class)
	}
}

func TestExtractSourceErrorIsServerFailure(t *testing.T) {
	e := New(&fakeSource{err: errors.New("not a PDF file: invalid header")}, nil)

	res := e.Extract(context.Background(), "broken.pdf")
	f, ok := res.Failure()
	if !ok {
		t.Fatalf("expected failure")
	}
	if f.Reason != "Failed to process PDF file: not a PDF file: invalid header" {
		t.Fatalf("unexpected reason: %q", f.Reason)
	}
	if f.Class != extract.ClassServer {
		t.Fatalf("expected server class, got %s", f.Class)
	}
}

func TestExtractRecoversPanics(t *testing.T) {
	e := New(&fakeSource{panic: "index out of range"}, nil)

	res := e.Extract(context.Background(), "cursed.pdf")
	f, ok := res.Failure()
	if !ok {
		t.Fatalf("expected failure")
	}
	if !strings.HasPrefix(f.Reason, "Failed to process PDF file: ") || f.Class != extract.ClassServer {
		t.Fatalf("unexpected failure: %+v", f)
	}
}

func TestNativeRejectsNonPDF(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(p, []byte("this is not a pdf at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	e := New(NewNative(), nil)
	res := e.Extract(context.Background(), p)
	f, ok := res.Failure()
	if !ok {
		t.Fatalf("expected failure for non-pdf content")
	}
	if !strings.HasPrefix(f.Reason, "Failed to process PDF file: ") {
		t.Fatalf("unexpected reason: %q", f.Reason)
	}
}

func TestNativeMissingFile(t *testing.T) {
	e := New(NewNative(), nil)
	res := e.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	f, ok := res.Failure()
	if !ok || f.Class != extract.ClassServer {
		t.Fatalf("expected server failure for missing file, got %+v", f)
	}
}

func TestNewSource(t *testing.T) {
	for backend, want := range map[string]string{"": "native", "native": "native", "Poppler": "poppler"} {
		src, err := NewSource(backend, PopplerConfig{}, nil)
		if err != nil {
			t.Fatalf("backend %q: %v", backend, err)
		}
		if src.Name() != want {
			t.Fatalf("backend %q: expected %q, got %q", backend, want, src.Name())
		}
	}
	if _, err := NewSource("mupdf", PopplerConfig{}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
