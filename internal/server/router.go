// Package server exposes the sensor's ops HTTP surface.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/openport/common/httputil"
	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/common/messaging"
	"github.com/telhawk-systems/openport/common/middleware"
	"github.com/telhawk-systems/openport/internal/models"
)

const readyTimeout = 2 * time.Second

// QuotaReader exposes the usage ledger for diagnostics.
type QuotaReader interface {
	Samples(ctx context.Context) ([]models.QuotaSample, error)
	Pending() (models.QuotaSample, bool)
	Capacity() int64
}

// Handler serves health, readiness and quota endpoints.
type Handler struct {
	quota  QuotaReader
	redis  redis.Cmdable
	broker messaging.Client
	logger *logging.Logger
}

// NewHandler creates a Handler. broker may be nil when the process runs
// without a subscription.
func NewHandler(quota QuotaReader, rdb redis.Cmdable, broker messaging.Client, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{quota: quota, redis: rdb, broker: broker, logger: logger}
}

// NewRouter constructs a ServeMux with the ops routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.HandleFunc("GET /api/v1/ratelimit", h.RateLimit)

	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(middleware.AccessLog(h.logger, mux))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type checkResult struct {
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Ready reports whether Redis and the message broker are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]checkResult{}
	ready := true

	if h.redis != nil {
		start := time.Now()
		res := checkResult{OK: true}
		if err := h.redis.Ping(ctx).Err(); err != nil {
			res = checkResult{Error: err.Error()}
			ready = false
		}
		res.LatencyMs = time.Since(start).Milliseconds()
		checks["redis"] = res
	}

	if h.broker != nil {
		status := messaging.CheckClientHealth(h.broker)
		checks["nats"] = checkResult{
			OK:        status.Connected && status.Error == "",
			LatencyMs: status.Latency.Milliseconds(),
			Error:     status.Error,
		}
		if !checks["nats"].OK {
			ready = false
		}
	}

	status := http.StatusOK
	body := map[string]any{"status": "ready", "checks": checks}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "not ready"
		h.logger.WarnContext(ctx, "readiness check failed", "checks", checks)
	}
	httputil.WriteJSON(w, status, body)
}

// RateLimitReport is the body of GET /api/v1/ratelimit.
type RateLimitReport struct {
	Capacity int64                `json:"capacity" yaml:"capacity"`
	Pending  *models.QuotaSample  `json:"pending,omitempty" yaml:"pending,omitempty"`
	Samples  []models.QuotaSample `json:"samples" yaml:"samples"`
}

// RateLimit lists the stored quota history plus the open window.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	samples, err := h.quota.Samples(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read quota history", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "quota history unavailable")
		return
	}
	if samples == nil {
		samples = []models.QuotaSample{}
	}

	report := RateLimitReport{Capacity: h.quota.Capacity(), Samples: samples}
	if pending, ok := h.quota.Pending(); ok {
		report.Pending = &pending
	}
	httputil.Write(w, r, http.StatusOK, report)
}
