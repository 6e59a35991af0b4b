package pdf

import (
	"context"
	"fmt"

	ledongthuc "github.com/ledongthuc/pdf"
)

// Native reads the PDF text layer in-process.
type Native struct{}

func NewNative() *Native { return &Native{} }

func (n *Native) Name() string { return "native" }

func (n *Native) PageTexts(ctx context.Context, path string) (texts []string, err error) {
	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// the library panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			texts = nil
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	total := r.NumPage()
	texts = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
