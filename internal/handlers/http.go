package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"water-anomaly-monitor/internal/metrics"
	"water-anomaly-monitor/internal/models"
)

const (
	resetMessage        = "Data reset successfully"
	healthTimeout       = 2 * time.Second
	recentAnomaliesSize = 10
)

// ReadingStore состояние сборщика, доступное HTTP
type ReadingStore interface {
	Snapshot() []models.Reading
	Reset()
	Stats() map[string]interface{}
	Running() bool
}

// Mirror необязательное зеркало в Redis
type Mirror interface {
	Ping(ctx context.Context) error
	GetStats() map[string]interface{}
	GetRecentAnomalies(ctx context.Context, limit int) ([]string, error)
}

// Handler обработчик HTTP запросов
type Handler struct {
	store  ReadingStore
	mirror Mirror
	logger *zap.Logger
}

// NewHandler создает новый обработчик. mirror может быть nil.
func NewHandler(store ReadingStore, mirror Mirror, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:  store,
		mirror: mirror,
		logger: logger,
	}
}

// GetData обрабатывает GET /data
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/data").Observe(time.Since(start).Seconds())
	}()

	readings := h.store.Snapshot()

	metrics.RequestsTotal.WithLabelValues(r.Method, "/data", "200").Inc()
	h.writeJSON(w, http.StatusOK, readings)
}

// Reset обрабатывает POST /reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/reset").Observe(time.Since(start).Seconds())
	}()

	h.store.Reset()

	metrics.RequestsTotal.WithLabelValues(r.Method, "/reset", "200").Inc()
	h.writeJSON(w, http.StatusOK, models.ResetResponse{Message: resetMessage})
}

// HealthCheck обрабатывает GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	collectorOK := h.store.Running()

	status := "healthy"
	httpStatus := http.StatusOK
	if !collectorOK {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":    status,
		"collector": collectorOK,
		"timestamp": time.Now(),
	}

	if h.mirror != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		redisOK := h.mirror.Ping(ctx) == nil
		body["redis"] = redisOK
		// Зеркало не обязательно для работы, поэтому только degraded
		if !redisOK && collectorOK {
			body["status"] = "degraded"
		}
	}

	metrics.RequestsTotal.WithLabelValues(r.Method, "/health", strconv.Itoa(httpStatus)).Inc()
	h.writeJSON(w, httpStatus, body)
}

// GetStats обрабатывает GET /stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(r.Method, "/stats").Observe(time.Since(start).Seconds())
	}()

	body := map[string]interface{}{
		"collector": h.store.Stats(),
		"timestamp": time.Now(),
	}
	if h.mirror != nil {
		redisStats := h.mirror.GetStats()
		if keys, err := h.mirror.GetRecentAnomalies(r.Context(), recentAnomaliesSize); err == nil {
			redisStats["recent_anomalies"] = keys
		} else {
			h.logger.Warn("failed to get recent anomalies", zap.Error(err))
		}
		body["redis"] = redisStats
	}

	metrics.RequestsTotal.WithLabelValues(r.Method, "/stats", "200").Inc()
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}
