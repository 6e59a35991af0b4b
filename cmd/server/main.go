package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/toricodesthings/resume-analysis-service/internal/api"
	"github.com/toricodesthings/resume-analysis-service/internal/config"
	"github.com/toricodesthings/resume-analysis-service/internal/extract"
	imageextractor "github.com/toricodesthings/resume-analysis-service/internal/extractors/image"
	pdfextractor "github.com/toricodesthings/resume-analysis-service/internal/extractors/pdf"
	"github.com/toricodesthings/resume-analysis-service/internal/ocr"
	"github.com/toricodesthings/resume-analysis-service/internal/resume"
	"github.com/toricodesthings/resume-analysis-service/internal/runner"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "resume-analyzer:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if missing := registry.Missing(cfg.AllowedExtensions); len(missing) > 0 {
		return fmt.Errorf("no extractor for allowed extensions: %s", strings.Join(missing, ", "))
	}

	parser, err := buildParser(cfg, logger)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Options{
		AllowedExtensions:  cfg.AllowedExtensions,
		UploadDir:          cfg.UploadDir,
		UniqueUploadNames:  cfg.UniqueUploadNames,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		MaxFormMemoryBytes: cfg.MaxFormMemoryBytes,
	}, registry, parser, &api.Stats{}, logger)

	server := api.NewServer(api.ServerOptions{
		MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		RateLimitEvery:        cfg.RateLimitEvery,
		RateLimitBurst:        cfg.RateLimitBurst,
		HealthDegradeRatio:    cfg.HealthDegradeRatio,
		CORSAllowedOrigins:    cfg.CORSAllowedOrigins,
		Version:               version,
	}, handler, logger)

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go server.Housekeep(ctx, cfg.CleanupInterval)

	errc := make(chan error, 1)
	go func() {
		logger.Info("resume analyzer listening",
			zap.String("addr", srv.Addr),
			zap.Strings("allowed_extensions", cfg.AllowedExtensions),
			zap.String("pdf_backend", cfg.PDFBackend),
			zap.Int64("max_concurrent", cfg.MaxConcurrentRequests),
			zap.Int64("max_ocr_concurrent", cfg.MaxOCRConcurrent),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func buildRegistry(cfg config.Config, logger *zap.Logger) (*extract.Registry, error) {
	exec := runner.NewExec(0, logger)

	pages, err := pdfextractor.NewSource(cfg.PDFBackend, pdfextractor.PopplerConfig{
		PDFInfoTimeout:   cfg.PDFInfoTimeout,
		PDFToTextTimeout: cfg.PDFToTextTimeout,
		MaxPageWorkers:   cfg.MaxPageWorkers,
		Runner:           exec,
	}, logger)
	if err != nil {
		return nil, err
	}

	engine := ocr.WithConcurrencyLimit(ocr.NewTesseract(ocr.TesseractConfig{
		Binary:      cfg.TesseractBinary,
		Lang:        cfg.TesseractLang,
		TessdataDir: cfg.TessdataDir,
		PSM:         cfg.TesseractPSM,
		OEM:         cfg.TesseractOEM,
		Timeout:     cfg.OCRTimeout,
		Runner:      exec,
	}, logger), cfg.MaxOCRConcurrent)

	registry := extract.NewRegistry()
	registry.Register(pdfextractor.New(pages, logger))
	registry.Register(imageextractor.New(engine, logger))
	return registry, nil
}

func buildParser(cfg config.Config, logger *zap.Logger) (*resume.Parser, error) {
	opts := []resume.Option{
		resume.WithPreviewChars(cfg.PreviewMaxChars),
		resume.WithLogger(logger),
	}
	if cfg.SkillsFile != "" {
		vocab, err := resume.LoadVocabulary(cfg.SkillsFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded skill vocabulary", zap.String("path", cfg.SkillsFile), zap.Int("skills", len(vocab.Skills())))
		opts = append(opts, resume.WithVocabulary(vocab))
	}
	return resume.NewParser(opts...), nil
}
