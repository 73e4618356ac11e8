package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
)

// Metrics stores process-wide request and run counters.
type Metrics struct {
	RequestsTotal      atomic.Uint64
	RequestsInProgress atomic.Int64
	RequestsSuccess    atomic.Uint64
	RequestsFailed     atomic.Uint64
	RunsTotal          atomic.Uint64
	RunsRunning        atomic.Int64
	RunsPassed         atomic.Uint64
	RunsFailed         atomic.Uint64
	RunsErrored        atomic.Uint64
	StartTime          time.Time
}

func NewMetrics() *Metrics { return &Metrics{StartTime: time.Now()} }

// RunStarted implementasi runs.Metrics
func (m *Metrics) RunStarted() {
	m.RunsTotal.Add(1)
	m.RunsRunning.Add(1)
}

func (m *Metrics) RunFinished(status runs.Status) {
	m.RunsRunning.Add(-1)
	switch status {
	case runs.StatusPassed:
		m.RunsPassed.Add(1)
	case runs.StatusFailed:
		m.RunsFailed.Add(1)
	default:
		m.RunsErrored.Add(1)
	}
}

// Snapshot returns current metrics
func (m *Metrics) Snapshot() map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]any{
		"requests_total":       m.RequestsTotal.Load(),
		"requests_in_progress": m.RequestsInProgress.Load(),
		"requests_success":     m.RequestsSuccess.Load(),
		"requests_failed":      m.RequestsFailed.Load(),
		"runs_total":           m.RunsTotal.Load(),
		"runs_running":         m.RunsRunning.Load(),
		"runs_passed":          m.RunsPassed.Load(),
		"runs_failed":          m.RunsFailed.Load(),
		"runs_errored":         m.RunsErrored.Load(),
		"uptime_seconds":       time.Since(m.StartTime).Seconds(),
		"memory": map[string]any{
			"alloc_bytes": mem.Alloc,
			"sys_bytes":   mem.Sys,
			"num_gc":      mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// Middleware tracks request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsTotal.Add(1)
		m.RequestsInProgress.Add(1)
		defer m.RequestsInProgress.Add(-1)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if status := statusOf(ww); status < http.StatusBadRequest {
			m.RequestsSuccess.Add(1)
		} else {
			m.RequestsFailed.Add(1)
		}
	})
}

// Handler returns metrics as JSON
func (m *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.Snapshot())
}
