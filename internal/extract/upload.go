package extract

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrTooLarge is returned by SaveUpload when the body exceeds the byte limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Upload is a file persisted in the working directory for one request.
type Upload struct {
	Path     string
	MIMEType string
	Size     int64
}

// Cleanup removes the upload. A file that is already gone is not an error.
func (u Upload) Cleanup() error {
	if u.Path == "" {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type SaveOptions struct {
	// MaxBytes caps the stored size; zero disables the cap.
	MaxBytes int64
	// Unique prefixes the stored name with a UUID so concurrent uploads with
	// the same original name do not collide.
	Unique bool
}

// SaveUpload writes body into dir under the base of fileName and sniffs its
// MIME type. On error nothing is left behind.
func SaveUpload(dir, fileName string, body io.Reader, opts SaveOptions) (Upload, error) {
	safeName := filepath.Base(strings.TrimSpace(fileName))
	if safeName == "" || safeName == "." || safeName == string(filepath.Separator) {
		return Upload{}, fmt.Errorf("invalid file name %q", fileName)
	}
	if opts.Unique {
		safeName = uuid.NewString() + "-" + safeName
	}
	outPath := filepath.Join(dir, safeName)

	f, err := os.Create(outPath)
	if err != nil {
		return Upload{}, fmt.Errorf("create: %w", err)
	}

	n, err := copyLimited(f, body, opts.MaxBytes)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(outPath)
		return Upload{}, err
	}

	return Upload{
		Path:     outPath,
		MIMEType: sniffMIMEType(outPath),
		Size:     n,
	}, nil
}

func copyLimited(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	if maxBytes <= 0 {
		n, err := io.Copy(dst, src)
		if err != nil {
			return n, fmt.Errorf("write: %w", err)
		}
		return n, nil
	}
	lr := &io.LimitedReader{R: src, N: maxBytes + 1}
	n, err := io.Copy(dst, lr)
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if n > maxBytes {
		return n, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return n, nil
}

func sniffMIMEType(path string) string {
	m, err := mimetype.DetectFile(path)
	if err == nil && m != nil {
		return strings.ToLower(strings.TrimSpace(m.String()))
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(http.DetectContentType(buf[:n])))
}
