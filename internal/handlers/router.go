package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// NewRouter собирает маршруты, логирование запросов и CORS
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	// API endpoints
	router.HandleFunc("/data", h.GetData).Methods(http.MethodGet)
	router.HandleFunc("/reset", h.Reset).Methods(http.MethodPost)
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)

	// Prometheus metrics endpoint
	router.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodOptions, http.MethodHead,
		},
		AllowedHeaders: []string{"*"},
	})

	// Логгер снаружи mux: ответы 404 и 405 тоже логируются
	return c.Handler(h.requestLogger(router))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger проставляет X-Request-ID и пишет строку лога на каждый запрос
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
