package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal общее количество запросов
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration продолжительность запросов
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ReadingsGenerated сгенерированные показания
	ReadingsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readings_generated_total",
			Help: "Total number of synthetic readings appended to the log",
		},
	)

	// AnomaliesDetected обнаруженные аномалии
	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of readings labelled as anomalies",
		},
	)

	// StepFailures неудачные шаги сборщика
	StepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_step_failures_total",
			Help: "Total number of collector steps that were skipped",
		},
		[]string{"reason"},
	)

	// ScoringLatency задержка оценки
	ScoringLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scoring_latency_seconds",
			Help:    "Anomaly scoring latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// LogSize текущий размер журнала показаний
	LogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readings_log_size",
			Help: "Current number of readings held in memory",
		},
	)

	// DayIndex текущий индекс дня
	DayIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collector_day_index",
			Help: "Day index of the next reading to generate",
		},
	)

	// Resets количество сбросов
	Resets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_resets_total",
			Help: "Total number of reset operations",
		},
	)

	// RedisOperations операции с Redis
	RedisOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		},
		[]string{"operation", "status"},
	)
)
