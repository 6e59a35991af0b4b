package api

import (
	"math"
	"net/http"
	"runtime"
	"sync"
)

// Stats holds process-wide request and analysis counters.
type Stats struct {
	mu            sync.RWMutex
	totalRequests int64
	activeReqs    int64
	succeeded     int64
	failed        int64
}

type Snapshot struct {
	TotalRequests int64
	Active        int64
	Succeeded     int64
	Failed        int64
}

func (s *Stats) incActive() {
	s.mu.Lock()
	s.activeReqs++
	s.totalRequests++
	s.mu.Unlock()
}

func (s *Stats) decActive() {
	s.mu.Lock()
	s.activeReqs--
	s.mu.Unlock()
}

func (s *Stats) analysisSucceeded() {
	s.mu.Lock()
	s.succeeded++
	s.mu.Unlock()
}

func (s *Stats) analysisFailed() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		TotalRequests: s.totalRequests,
		Active:        s.activeReqs,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	status := "healthy"
	code := http.StatusOK

	ratio := s.opts.HealthDegradeRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.9
	}

	if snap.Active >= degradeThreshold(s.opts.MaxConcurrentRequests, ratio) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  snap.Active,
		"version": s.opts.Version,
	})
}

// degradeThreshold is the active-request count at which /health reports
// degraded; never below one.
func degradeThreshold(capacity int64, ratio float64) int64 {
	return max(int64(math.Ceil(float64(capacity)*ratio)), 1)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	snap := s.stats.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"activeRequests":     snap.Active,
		"totalRequests":      snap.TotalRequests,
		"analysesSucceeded":  snap.Succeeded,
		"analysesFailed":     snap.Failed,
		"goroutines":         runtime.NumGoroutine(),
		"memAllocMB":         m.Alloc / (1 << 20),
		"memSysMB":           m.Sys / (1 << 20),
		"registeredHandlers": s.handler.registry.Extensions(),
	})
}
