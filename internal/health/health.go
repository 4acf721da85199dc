// Package health provides health check endpoints for the table gateway.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/tablegateway/internal/config"
	"github.com/devrev/tablegateway/internal/redact"
	"go.uber.org/zap"
)

// Pinger probes the remote table API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusRecorder publishes the probe result.
type StatusRecorder interface {
	SetHealthStatus(healthy bool)
}

// HealthCheck manages health check functionality.
type HealthCheck struct {
	pinger        Pinger
	recorder      StatusRecorder
	logger        *zap.Logger
	checkInterval time.Duration
	checkTimeout  time.Duration

	mu        sync.RWMutex
	ready     bool
	lastErr   error
	lastCheck time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHealthCheck creates a new HealthCheck instance. recorder may be nil.
// The background probe runs once Start is called.
func NewHealthCheck(pinger Pinger, cfg config.HealthConfig, logger *zap.Logger, recorder StatusRecorder) *HealthCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	return &HealthCheck{
		pinger:        pinger,
		recorder:      recorder,
		logger:        logger.Named("health"),
		checkInterval: cfg.CheckInterval,
		checkTimeout:  cfg.CheckTimeout,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health requests.
// Returns 200 OK if the process is running.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests. When the last probe failed
// a fresh one is run before answering.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if hc.IsReady() {
		writeJSON(w, http.StatusOK, readyResponse())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), hc.checkTimeout)
	defer cancel()

	if err := hc.check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status: "not_ready",
			Checks: map[string]string{"airtable": "unhealthy"},
			Error:  redact.Error(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, readyResponse())
}

// Start runs an initial probe and then probes every check interval until
// ctx is done or Stop is called.
func (hc *HealthCheck) Start(ctx context.Context) {
	go hc.backgroundCheck(ctx)
}

// Stop ends the background probe and waits for it to exit. It must only be
// called after Start.
func (hc *HealthCheck) Stop() {
	hc.stopOnce.Do(func() { close(hc.stop) })
	<-hc.done
}

// backgroundCheck performs periodic health checks.
func (hc *HealthCheck) backgroundCheck(ctx context.Context) {
	defer close(hc.done)

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
		_ = hc.check(probeCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-hc.stop:
			return
		case <-ticker.C:
		}
	}
}

func (hc *HealthCheck) check(ctx context.Context) error {
	err := hc.pinger.Ping(ctx)

	hc.mu.Lock()
	wasReady := hc.ready
	hc.ready = err == nil
	hc.lastErr = err
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	if hc.recorder != nil {
		hc.recorder.SetHealthStatus(err == nil)
	}

	switch {
	case err != nil:
		hc.logger.Warn("health check failed", zap.String("error", redact.Error(err)))
	case !wasReady:
		hc.logger.Info("remote table API reachable")
	}
	return err
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// LastCheck returns the time and result of the most recent probe.
func (hc *HealthCheck) LastCheck() (time.Time, error) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.lastCheck, hc.lastErr
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}

func readyResponse() ReadinessResponse {
	return ReadinessResponse{
		Status: "ready",
		Checks: map[string]string{"airtable": "healthy"},
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
