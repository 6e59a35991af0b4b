package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string `yaml:"port"`

	// Uploads
	UploadDir          string   `yaml:"upload_dir"`
	AllowedExtensions  []string `yaml:"allowed_extensions"`
	UniqueUploadNames  bool     `yaml:"unique_upload_names"`
	MaxUploadBytes     int64    `yaml:"max_upload_bytes"`
	MaxFormMemoryBytes int64    `yaml:"max_form_memory_bytes"`

	// Parsing
	PreviewMaxChars int    `yaml:"preview_max_chars"`
	SkillsFile      string `yaml:"skills_file"`

	// PDF
	PDFBackend       string        `yaml:"pdf_backend"`
	PDFInfoTimeout   time.Duration `yaml:"pdfinfo_timeout"`
	PDFToTextTimeout time.Duration `yaml:"pdftotext_timeout"`
	MaxPageWorkers   int           `yaml:"max_page_workers"`

	// OCR
	TesseractBinary  string        `yaml:"tesseract_binary"`
	TesseractLang    string        `yaml:"tesseract_lang"`
	TessdataDir      string        `yaml:"tessdata_dir"`
	TesseractPSM     int           `yaml:"tesseract_psm"`
	TesseractOEM     int           `yaml:"tesseract_oem"`
	OCRTimeout       time.Duration `yaml:"ocr_timeout"`
	MaxOCRConcurrent int64         `yaml:"max_ocr_concurrent"`

	// Concurrency
	MaxConcurrentRequests int64 `yaml:"max_concurrent_requests"`

	// Server timeouts
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`

	// rate limiting (per IP)
	RateLimitEvery time.Duration `yaml:"rate_limit_every"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`

	// housekeeping
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// health
	HealthDegradeRatio float64 `yaml:"health_degrade_ratio"`

	// http
	MaxHeaderBytes     int      `yaml:"max_header_bytes"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func Defaults() Config {
	return Config{
		Port: "5178",

		UploadDir:          "uploads",
		AllowedExtensions:  []string{"pdf", "png", "jpg", "jpeg"},
		MaxUploadBytes:     20 << 20,
		MaxFormMemoryBytes: 8 << 20,

		PreviewMaxChars: 1500,

		PDFBackend:       "native",
		PDFInfoTimeout:   5 * time.Second,
		PDFToTextTimeout: 10 * time.Second,
		MaxPageWorkers:   8,

		TesseractBinary:  "tesseract",
		TesseractLang:    "eng",
		OCRTimeout:       60 * time.Second,
		MaxOCRConcurrent: 3,

		MaxConcurrentRequests: 15,

		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   15 * time.Second,

		RateLimitEvery: 600 * time.Millisecond,
		RateLimitBurst: 20,

		CleanupInterval: 5 * time.Minute,

		HealthDegradeRatio: 0.9,

		MaxHeaderBytes:     1 << 20,
		CORSAllowedOrigins: []string{"*"},

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load layers environment variables over the YAML file named by CONFIG_FILE
// (if any) over Defaults.
func Load() (Config, error) {
	c := Defaults()

	if path := envStr("CONFIG_FILE", ""); path != "" {
		if err := c.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	c.Port = envStr("PORT", c.Port)

	c.UploadDir = envStr("UPLOAD_DIR", c.UploadDir)
	c.AllowedExtensions = envList("ALLOWED_EXTENSIONS", c.AllowedExtensions)
	c.UniqueUploadNames = envBool("UNIQUE_UPLOAD_NAMES", c.UniqueUploadNames)
	c.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.MaxFormMemoryBytes = int64(envInt("MAX_FORM_MEMORY_BYTES", int(c.MaxFormMemoryBytes)))

	c.PreviewMaxChars = envInt("PREVIEW_MAX_CHARS", c.PreviewMaxChars)
	c.SkillsFile = envStr("SKILLS_FILE", c.SkillsFile)

	c.PDFBackend = envStr("PDF_BACKEND", c.PDFBackend)
	c.PDFInfoTimeout = envDur("PDFINFO_TIMEOUT", c.PDFInfoTimeout)
	c.PDFToTextTimeout = envDur("PDFTOTEXT_TIMEOUT", c.PDFToTextTimeout)
	c.MaxPageWorkers = envInt("MAX_PAGE_WORKERS", c.MaxPageWorkers)

	c.TesseractBinary = envStr("TESSERACT_BINARY", c.TesseractBinary)
	c.TesseractLang = envStr("TESSERACT_LANG", c.TesseractLang)
	c.TessdataDir = envStr("TESSDATA_DIR", c.TessdataDir)
	c.TesseractPSM = envInt("TESSERACT_PSM", c.TesseractPSM)
	c.TesseractOEM = envInt("TESSERACT_OEM", c.TesseractOEM)
	c.OCRTimeout = envDur("OCR_TIMEOUT", c.OCRTimeout)
	c.MaxOCRConcurrent = int64(envInt("MAX_OCR_CONCURRENT", int(c.MaxOCRConcurrent)))

	c.MaxConcurrentRequests = int64(envInt("MAX_CONCURRENT_REQUESTS", int(c.MaxConcurrentRequests)))

	c.ReadHeaderTimeout = envDur("READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = envDur("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = envDur("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = envDur("IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = envDur("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.RateLimitEvery = envDur("RATE_LIMIT_EVERY", c.RateLimitEvery)
	c.RateLimitBurst = envInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.CleanupInterval = envDur("CLEANUP_INTERVAL", c.CleanupInterval)

	c.HealthDegradeRatio = envFloat("HEALTH_DEGRADE_RATIO", c.HealthDegradeRatio)

	c.MaxHeaderBytes = envInt("MAX_HEADER_BYTES", c.MaxHeaderBytes)
	c.CORSAllowedOrigins = envList("CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envStr("LOG_FORMAT", c.LogFormat)

	c.AllowedExtensions = normalizeExtensions(c.AllowedExtensions)
	return c, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("ALLOWED_EXTENSIONS must list at least one extension")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR must not be empty")
	}
	if c.PreviewMaxChars <= 0 {
		return fmt.Errorf("PREVIEW_MAX_CHARS must be positive")
	}
	switch strings.ToLower(c.PDFBackend) {
	case "native", "poppler":
	default:
		return fmt.Errorf("PDF_BACKEND must be native or poppler, got %q", c.PDFBackend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be positive")
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, e := range exts {
		key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func envList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
