package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/toricodesthings/resume-analysis-service/internal/extract"
	"github.com/toricodesthings/resume-analysis-service/mocks"
)

func newTestServer(t *testing.T, opts ServerOptions) *Server {
	t.Helper()
	h := NewHandler(Options{AllowedExtensions: allowedExts, UploadDir: t.TempDir()}, extract.NewRegistry(), nil, nil, nil)
	return NewServer(opts, h, nil)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Routes().ServeHTTP(rr, req)
	return rr
}

func TestRoutesAnalyzeRejectsOtherMethods(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/analyze", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestRoutesPreflight(t *testing.T) {
	s := newTestServer(t, ServerOptions{CORSAllowedOrigins: []string{"*"}})
	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")

	rr := serve(s, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRoutesCORSExplicitOrigins(t *testing.T) {
	s := newTestServer(t, ServerOptions{CORSAllowedOrigins: []string{"https://cv.example.com"}})

	allowed := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("text=Jane"))
	allowed.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	allowed.Header.Set("Origin", "https://cv.example.com")
	rr := serve(s, allowed)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://cv.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	other := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("text=Jane"))
	other.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	other.Header.Set("Origin", "https://evil.example.com")
	rr = serve(s, other)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutesRequestID(t *testing.T) {
	s := newTestServer(t, ServerOptions{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(rr.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	rr = serve(s, req)
	assert.Equal(t, id, rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "not a uuid\n")
	rr = serve(s, req)
	assert.NotEqual(t, "not a uuid\n", rr.Header().Get("X-Request-ID"))
}

func TestRoutesRateLimit(t *testing.T) {
	s := newTestServer(t, ServerOptions{RateLimitEvery: time.Hour, RateLimitBurst: 1})
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("text=Jane"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		return req
	}

	assert.Equal(t, http.StatusOK, serve(s, newReq()).Code)

	rr := serve(s, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	s.resetLimiters()
	assert.Equal(t, http.StatusOK, serve(s, newReq()).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, ServerOptions{MaxConcurrentRequests: 2, HealthDegradeRatio: 0.5, Version: "test"})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])

	s.stats.incActive()
	defer s.stats.decActive()

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestMetricsCountsRequests(t *testing.T) {
	s := newTestServer(t, ServerOptions{})
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("text=Jane"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	serve(s, req)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["totalRequests"])
	assert.Equal(t, float64(0), body["activeRequests"])
	assert.Equal(t, float64(1), body["analysesSucceeded"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", clientIP(req))

	req.Header.Set("X-Real-IP", " 192.0.2.9 ")
	assert.Equal(t, "192.0.2.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestRoutesRejectAtCapacityWithoutWaiting(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pdf := new(mocks.MockExtractor)
	pdf.On("SupportedExtensions").Return([]string{".pdf"})
	pdf.On("Extract", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(extract.TextOr("Jane Doe\n", "unused")).Once()

	reg := extract.NewRegistry()
	reg.Register(pdf)
	h := NewHandler(Options{AllowedExtensions: allowedExts, UploadDir: t.TempDir()}, reg, nil, nil, nil)
	routes := NewServer(ServerOptions{MaxConcurrentRequests: 1}, h, nil).Routes()

	pdfReq := multipartRequest(t, part{field: "file", filename: "cv.pdf", body: []byte("%PDF")})
	first := make(chan int, 1)
	go func() {
		rr := httptest.NewRecorder()
		routes.ServeHTTP(rr, pdfReq)
		first <- rr.Code
	}()
	<-started

	textReq := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("text=Jane"))
	textReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	start := time.Now()
	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, textReq)
	waited := time.Since(start)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.JSONEq(t, `{"error":"Service at capacity"}`, rr.Body.String())
	assert.True(t, waited < 100*time.Millisecond, "request queued behind another for %s", waited)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
	pdf.AssertExpectations(t)
}

func TestHealthWithSingleSlot(t *testing.T) {
	s := newTestServer(t, ServerOptions{MaxConcurrentRequests: 1, HealthDegradeRatio: 0.9})

	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	s.stats.incActive()
	defer s.stats.decActive()
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestDegradeThreshold(t *testing.T) {
	cases := []struct {
		capacity int64
		ratio    float64
		want     int64
	}{
		{1, 0.9, 1},
		{2, 0.5, 1},
		{15, 0.9, 14},
		{10, 0.9, 9},
		{3, 0.1, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, degradeThreshold(tc.capacity, tc.ratio), "capacity=%d ratio=%v", tc.capacity, tc.ratio)
	}
}
