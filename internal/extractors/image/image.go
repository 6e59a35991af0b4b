package image

import (
	"context"
	"fmt"
	stdimage "image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
	"github.com/toricodesthings/resume-analysis-service/internal/ocr"
)

const (
	msgNoText        = "No text content recognized in the image."
	msgProcessFailed = "Failed to process image file: %v"
)

type Extractor struct {
	engine ocr.Engine
	logger *zap.Logger
}

func New(engine ocr.Engine, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{engine: engine, logger: logger}
}

func (e *Extractor) Name() string { return "image" }

func (e *Extractor) SupportedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg"}
}

// Extract returns the recognized text exactly as the engine produced it.
func (e *Extractor) Extract(ctx context.Context, path string) (res extract.Result) {
	log := e.logger.With(zap.String("path", path))

	defer func() {
		if r := recover(); r != nil {
			log.Error("image extraction panic", zap.Any("panic", r), zap.Stack("stack"))
			res = extract.Fail(extract.ServerFailure(msgProcessFailed, r))
		}
	}()

	format, bounds, err := decode(path)
	if err != nil {
		log.Error("image decode error", zap.Error(err))
		return extract.Fail(extract.ServerFailure(msgProcessFailed, err))
	}
	log = log.With(zap.String("format", format), zap.Int("width", bounds.Dx()), zap.Int("height", bounds.Dy()))

	text, err := e.engine.Recognize(ctx, path)
	if err != nil {
		log.Error("ocr error", zap.Error(err))
		return extract.Fail(extract.ServerFailure(msgProcessFailed, err))
	}

	res = extract.TextOr(text, msgNoText)
	if res.IsFailure() {
		log.Warn("no text could be extracted from image")
		return res
	}

	words, chars := extract.BuildCounts(text)
	log.Info("extracted text from image", zap.Int("words", words), zap.Int("chars", chars))
	return res
}

// decode fully decodes the image so truncated or unreadable files fail
// before the OCR engine sees them. The format comes from the content, so a
// GIF, BMP, TIFF or WebP saved as .png still decodes.
func decode(path string) (string, stdimage.Rectangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", stdimage.Rectangle{}, err
	}
	defer f.Close()

	img, format, err := stdimage.Decode(f)
	if err != nil {
		return "", stdimage.Rectangle{}, fmt.Errorf("cannot identify image file: %w", err)
	}
	return format, img.Bounds(), nil
}
