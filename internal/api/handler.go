package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
	"github.com/toricodesthings/resume-analysis-service/internal/resume"
)

const (
	msgEmptyText     = "Empty text provided"
	msgNoFile        = "No file selected"
	msgNoInput       = "No file or text provided in the request"
	msgNotAllowed    = "File type not allowed. Please upload: %s"
	msgSaveFailed    = "Could not save uploaded file: %v"
	msgBadBody       = "Invalid request body: %v"
	msgUnexpected    = "An unexpected server error occurred: %v"
	msgNoExtractor   = "No extractor available for .%s files"
	defaultFormBytes = 8 << 20
)

// Options is the per-process configuration of the analyze handler.
type Options struct {
	// AllowedExtensions, without dots, in the order shown to clients.
	AllowedExtensions []string
	// UploadDir must exist and be writable.
	UploadDir          string
	UniqueUploadNames  bool
	MaxUploadBytes     int64
	MaxFormMemoryBytes int64
}

type Handler struct {
	opts     Options
	allowed  map[string]bool
	registry *extract.Registry
	parser   *resume.Parser
	stats    *Stats
	logger   *zap.Logger
}

func NewHandler(opts Options, registry *extract.Registry, parser *resume.Parser, stats *Stats, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = &Stats{}
	}
	if parser == nil {
		parser = resume.NewParser(resume.WithLogger(logger))
	}
	if opts.MaxFormMemoryBytes <= 0 {
		opts.MaxFormMemoryBytes = defaultFormBytes
	}

	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[extract.NormalizeExt(ext)] = true
	}

	return &Handler{
		opts:     opts,
		allowed:  allowed,
		registry: registry,
		parser:   parser,
		stats:    stats,
		logger:   logger,
	}
}

// Analyze handles POST /analyze. Input is a "text" field or a "file" part,
// checked in that order.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("request_id", RequestID(r.Context())))

	var upload extract.Upload
	defer func() {
		if upload.Path == "" {
			return
		}
		if err := upload.Cleanup(); err != nil {
			log.Error("error removing temporary file", zap.String("path", upload.Path), zap.Error(err))
			return
		}
		log.Info("temporary file cleaned up", zap.String("path", upload.Path))
	}()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("unexpected error in /analyze", zap.Any("panic", rec), zap.Stack("stack"))
			h.stats.analysisFailed()
			writeError(w, http.StatusInternalServerError, fmt.Sprintf(msgUnexpected, rec))
		}
	}()

	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(h.opts.MaxFormMemoryBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Warn("invalid request body", zap.Error(err))
		h.reject(w, http.StatusBadRequest, fmt.Sprintf(msgBadBody, err))
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				log.Error("error removing multipart spill files", zap.Error(err))
			}
		}()
	}

	var input extract.Result
	switch {
	case hasField(r, "text"):
		log.Info("processing text input")
		text := r.PostForm.Get("text")
		if strings.TrimSpace(text) == "" {
			log.Warn("received empty text input")
			h.reject(w, http.StatusBadRequest, msgEmptyText)
			return
		}
		input = extract.TextOr(text, msgEmptyText)

	case hasFilePart(r, "file"):
		log.Info("processing file input")
		fh := firstFile(r, "file")
		if fh == nil || strings.TrimSpace(fh.Filename) == "" {
			log.Warn("no file selected (empty filename)")
			h.reject(w, http.StatusBadRequest, msgNoFile)
			return
		}

		ext, ok := h.allowedExtension(fh.Filename)
		if !ok {
			log.Warn("invalid file type attempted", zap.String("filename", fh.Filename))
			h.reject(w, http.StatusBadRequest, fmt.Sprintf(msgNotAllowed, strings.Join(h.opts.AllowedExtensions, ", ")))
			return
		}

		saved, err := h.save(fh)
		if err != nil {
			log.Error("error saving uploaded file", zap.String("filename", fh.Filename), zap.Error(err))
			h.reject(w, http.StatusInternalServerError, fmt.Sprintf(msgSaveFailed, err))
			return
		}
		upload = saved
		log.Info("file saved temporarily",
			zap.String("path", upload.Path),
			zap.String("mime", upload.MIMEType),
			zap.Int64("bytes", upload.Size),
		)

		extractor, err := h.registry.Resolve(ext)
		if err != nil {
			input = extract.Fail(extract.ServerFailure(msgNoExtractor, ext))
			break
		}
		input = extractor.Extract(r.Context(), upload.Path)

	default:
		log.Warn("request received without 'text' or 'file' part")
		h.reject(w, http.StatusBadRequest, msgNoInput)
		return
	}

	outcome := h.parser.Parse(input)
	if !outcome.OK() {
		f := outcome.Failure
		log.Warn("analysis failed", zap.String("error", f.Reason), zap.Stringer("class", f.Class))
		h.reject(w, statusFor(f), f.Reason)
		return
	}

	h.stats.analysisSucceeded()
	log.Info("analysis successful", zap.Int("skills", len(outcome.Resume.Skills)))
	writeJSON(w, http.StatusOK, outcome.Resume)
}

func (h *Handler) save(fh *multipart.FileHeader) (extract.Upload, error) {
	src, err := fh.Open()
	if err != nil {
		return extract.Upload{}, err
	}
	defer src.Close()

	return extract.SaveUpload(h.opts.UploadDir, fh.Filename, src, extract.SaveOptions{
		MaxBytes: h.opts.MaxUploadBytes,
		Unique:   h.opts.UniqueUploadNames,
	})
}

// allowedExtension returns the lowercased text after the last dot of name
// when it is in the allow-set.
func (h *Handler) allowedExtension(name string) (string, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", false
	}
	ext := strings.ToLower(name[i+1:])
	return ext, h.allowed[ext]
}

func (h *Handler) reject(w http.ResponseWriter, status int, msg string) {
	h.stats.analysisFailed()
	writeError(w, status, msg)
}

func statusFor(f *extract.Failure) int {
	if f.Class == extract.ClassServer {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func hasField(r *http.Request, key string) bool {
	_, ok := r.PostForm[key]
	return ok
}

// hasFilePart reports a file part under key. A part sent with an empty
// filename is parsed as a plain value, so that counts too.
func hasFilePart(r *http.Request, key string) bool {
	if r.MultipartForm == nil {
		return false
	}
	if len(r.MultipartForm.File[key]) > 0 {
		return true
	}
	_, ok := r.MultipartForm.Value[key]
	return ok
}

func firstFile(r *http.Request, key string) *multipart.FileHeader {
	if r.MultipartForm == nil || len(r.MultipartForm.File[key]) == 0 {
		return nil
	}
	return r.MultipartForm.File[key][0]
}
