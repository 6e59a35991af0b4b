package extract

import "context"

// Extractor is implemented by every file-type handler. Implementations never
// return raw errors: every outcome is a Result.
type Extractor interface {
	Extract(ctx context.Context, path string) Result
	SupportedExtensions() []string
	Name() string
}
