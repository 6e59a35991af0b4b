package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type ServerOptions struct {
	MaxConcurrentRequests int64
	RateLimitEvery        time.Duration
	RateLimitBurst        int
	HealthDegradeRatio    float64
	CORSAllowedOrigins    []string
	Version               string
}

// Server owns the analyze handler and the state shared by its middleware.
type Server struct {
	opts       ServerOptions
	handler    *Handler
	stats      *Stats
	requestSem *semaphore.Weighted
	limiters   atomic.Pointer[sync.Map]
	logger     *zap.Logger
}

func NewServer(opts ServerOptions, handler *Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrentRequests <= 0 {
		opts.MaxConcurrentRequests = 15
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}

	s := &Server{
		opts:       opts,
		handler:    handler,
		stats:      handler.stats,
		requestSem: semaphore.NewWeighted(opts.MaxConcurrentRequests),
		logger:     logger,
	}
	s.limiters.Store(&sync.Map{})
	return s
}

func (s *Server) Stats() *Stats { return s.stats }

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/analyze",
		s.withCORS(
			s.withRateLimit(
				withMethod(http.MethodPost,
					s.withConcurrencyLimit(s.handler.Analyze)))))

	return withRequestID(s.withLogging(s.withRecovery(mux)))
}

// Housekeep logs stats and resets per-IP limiters every interval until ctx
// is done.
func (s *Server) Housekeep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			snap := s.stats.Snapshot()
			s.logger.Info("stats",
				zap.Int64("active", snap.Active),
				zap.Int64("total", snap.TotalRequests),
				zap.Int64("succeeded", snap.Succeeded),
				zap.Int64("failed", snap.Failed),
				zap.Int("goroutines", runtime.NumGoroutine()),
				zap.Uint64("mem_mb", m.Alloc/(1<<20)),
			)

			s.resetLimiters()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
