package extract

import (
	"fmt"
	"sort"
	"strings"
)

type Registry struct {
	byExtension map[string]Extractor
	extractors  []Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byExtension: make(map[string]Extractor),
		extractors:  make([]Extractor, 0),
	}
}

func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
	for _, ext := range e.SupportedExtensions() {
		key := NormalizeExt(ext)
		if key != "" {
			r.byExtension[key] = e
		}
	}
}

// Resolve finds the extractor for an extension, with or without the leading dot.
func (r *Registry) Resolve(extension string) (Extractor, error) {
	ext := NormalizeExt(extension)
	if e, ok := r.byExtension[ext]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("no extractor registered for extension %q", extension)
}

// Extensions lists every registered extension, sorted.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Missing reports which of exts have no registered extractor.
func (r *Registry) Missing(exts []string) []string {
	var out []string
	for _, ext := range exts {
		if _, err := r.Resolve(ext); err != nil {
			out = append(out, NormalizeExt(ext))
		}
	}
	return out
}

// NormalizeExt lowercases and strips surrounding space and a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}
