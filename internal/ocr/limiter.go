package ocr

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when every recognition slot is taken.
var ErrBusy = errors.New("ocr engine at capacity")

// Limited caps how many recognitions run at once across all requests.
// A call that finds no free slot fails with ErrBusy instead of queueing.
type Limited struct {
	engine Engine
	sem    *semaphore.Weighted
}

// WithConcurrencyLimit wraps engine; max <= 0 returns engine unchanged.
func WithConcurrencyLimit(engine Engine, max int64) Engine {
	if max <= 0 {
		return engine
	}
	return &Limited{engine: engine, sem: semaphore.NewWeighted(max)}
}

func (l *Limited) Recognize(ctx context.Context, path string) (string, error) {
	if !l.sem.TryAcquire(1) {
		return "", ErrBusy
	}
	defer l.sem.Release(1)
	return l.engine.Recognize(ctx, path)
}
