package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"water-anomaly-monitor/internal/metrics"
	"water-anomaly-monitor/internal/models"
)

const (
	sinkQueueSize = 1000
	sinkTimeout   = 5 * time.Second
)

// Generator источник синтетических показаний
type Generator interface {
	Generate(dayIndex int) models.Reading
}

// Scorer оценивает показание
type Scorer interface {
	Score(reading models.Reading) (models.Anomaly, error)
}

// ReadingSink необязательное внешнее зеркало журнала
type ReadingSink interface {
	StoreReading(ctx context.Context, dayIndex int, reading models.Reading) error
	Clear(ctx context.Context) error
}

// sinkOp запись в зеркало; gen номер сброса, после которого она создана
type sinkOp struct {
	gen      uint64
	dayIndex int
	reading  models.Reading
}

// Collector периодически генерирует и оценивает показания и хранит их в памяти
type Collector struct {
	generator Generator
	scorer    Scorer
	sink      ReadingSink
	interval  time.Duration
	logger    *zap.Logger

	mu          sync.RWMutex
	dayIndex    int
	readings    []models.Reading
	anomalies   int
	failedSteps int

	startOnce sync.Once
	running   atomic.Bool
	done      chan struct{}
	sinkQueue chan sinkOp

	// Сброс не ходит через очередь: флаг clearPending не теряется при полной очереди
	sinkGen      atomic.Uint64
	clearPending atomic.Bool
	sinkWake     chan struct{}
}

// Option настройка сборщика
type Option func(*Collector)

// WithSink включает зеркалирование показаний
func WithSink(sink ReadingSink) Option {
	return func(c *Collector) {
		c.sink = sink
	}
}

// WithLogger задает логгер
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector создает сборщик в состоянии Stopped с пустым журналом
func NewCollector(generator Generator, scorer Scorer, interval time.Duration, opts ...Option) *Collector {
	c := &Collector{
		generator: generator,
		scorer:    scorer,
		interval:  interval,
		logger:    zap.NewNop(),
		readings:  []models.Reading{},
		done:      make(chan struct{}),
		sinkQueue: make(chan sinkOp, sinkQueueSize),
		sinkWake:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает фоновый цикл. Повторный вызов ничего не запускает и возвращает false.
func (c *Collector) Start(ctx context.Context) bool {
	started := false
	c.startOnce.Do(func() {
		started = true
		c.running.Store(true)

		if c.sink != nil {
			go c.drainSink(ctx)
		}
		go c.run(ctx)

		c.logger.Info("collector started", zap.Duration("interval", c.interval))
	})
	return started
}

// Running сообщает, работает ли фоновый цикл
func (c *Collector) Running() bool {
	return c.running.Load()
}

// Done закрывается после остановки фонового цикла
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	defer c.running.Store(false)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("collector stopped")
			return
		case <-ticker.C:
			if err := c.safeStep(); err != nil {
				c.logger.Warn("collector step skipped", zap.Error(err))
			}
		}
	}
}

// safeStep выполняет шаг, превращая панику в ошибку, чтобы цикл продолжал работу
func (c *Collector) safeStep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.StepFailures.WithLabelValues("panic").Inc()
			c.mu.Lock()
			c.failedSteps++
			c.mu.Unlock()
			err = fmt.Errorf("collector step panicked: %v", r)
		}
	}()
	_, err = c.Step()
	return err
}

// Step генерирует, оценивает и добавляет одно показание. Выполняется целиком под блокировкой.
func (c *Collector) Step() (models.Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := c.dayIndex
	reading := c.generator.Generate(day)

	start := time.Now()
	label, err := c.scorer.Score(reading)
	metrics.ScoringLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.failedSteps++
		metrics.StepFailures.WithLabelValues("scoring").Inc()
		return models.Reading{}, fmt.Errorf("failed to score reading for day %d: %w", day, err)
	}
	if label != models.AnomalyYes && label != models.AnomalyNo {
		c.failedSteps++
		metrics.StepFailures.WithLabelValues("label").Inc()
		return models.Reading{}, fmt.Errorf("scorer returned unexpected label %q for day %d", label, day)
	}
	reading.Anomaly = label

	c.readings = append(c.readings, reading)
	c.dayIndex++

	metrics.ReadingsGenerated.Inc()
	metrics.LogSize.Set(float64(len(c.readings)))
	metrics.DayIndex.Set(float64(c.dayIndex))
	if label == models.AnomalyYes {
		c.anomalies++
		metrics.AnomaliesDetected.Inc()
		c.logger.Info("anomaly detected",
			zap.Int("day_index", day),
			zap.String("date_time", reading.DateTime),
			zap.Float64("battery_v", reading.BatteryV),
			zap.Float64("water_temperature", reading.WaterTemperature),
			zap.Float64("water_level", reading.WaterLevel),
			zap.Float64("barometric_pressure", reading.BarometricPressure))
	} else {
		c.logger.Debug("reading generated", zap.Int("day_index", day), zap.String("date_time", reading.DateTime))
	}

	c.enqueueSink(sinkOp{gen: c.sinkGen.Load(), dayIndex: day, reading: reading})
	return reading, nil
}

// Snapshot возвращает копию журнала
func (c *Collector) Snapshot() []models.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Reading, len(c.readings))
	copy(out, c.readings)
	return out
}

// DayIndex индекс дня следующего показания
func (c *Collector) DayIndex() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dayIndex
}

// Reset очищает журнал и обнуляет индекс дня
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readings = []models.Reading{}
	c.dayIndex = 0
	c.anomalies = 0

	metrics.Resets.Inc()
	metrics.LogSize.Set(0)
	metrics.DayIndex.Set(0)

	c.requestSinkClear()
	c.logger.Info("collector state reset")
}

// Stats возвращает статистику сборщика
func (c *Collector) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"running":      c.running.Load(),
		"readings":     len(c.readings),
		"day_index":    c.dayIndex,
		"anomalies":    c.anomalies,
		"failed_steps": c.failedSteps,
		"interval":     c.interval.String(),
		"sink_enabled": c.sink != nil,
		"sink_queue":   len(c.sinkQueue),
	}
}

// enqueueSink вызывается под c.mu, поэтому порядок операций в очереди совпадает с порядком изменений
func (c *Collector) enqueueSink(op sinkOp) {
	if c.sink == nil {
		return
	}
	select {
	case c.sinkQueue <- op:
	default:
		// Очередь полна, пропускаем
		metrics.RedisOperations.WithLabelValues("enqueue", "dropped").Inc()
	}
}

// requestSinkClear вызывается под c.mu. Записи до сброса устаревают, очистка выполняется
// перед первой же следующей записью.
func (c *Collector) requestSinkClear() {
	if c.sink == nil {
		return
	}
	c.sinkGen.Add(1)
	c.clearPending.Store(true)

	// Устаревшие записи больше не нужны, освобождаем очередь
discard:
	for {
		select {
		case <-c.sinkQueue:
			metrics.RedisOperations.WithLabelValues("enqueue", "superseded").Inc()
		default:
			break discard
		}
	}

	select {
	case c.sinkWake <- struct{}{}:
	default:
	}
}

// drainSink единственный писатель в зеркало
func (c *Collector) drainSink(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sinkWake:
			c.applyPendingClear(ctx)
		case op := <-c.sinkQueue:
			if !c.applyPendingClear(ctx) {
				// Не пишем поверх неочищенного зеркала
				metrics.RedisOperations.WithLabelValues("store_reading", "skipped").Inc()
				continue
			}
			// Запись, созданная до сброса, который случился после ее извлечения
			if op.gen != c.sinkGen.Load() {
				metrics.RedisOperations.WithLabelValues("store_reading", "superseded").Inc()
				continue
			}
			c.applySink(ctx, "store_reading", func(opCtx context.Context) error {
				return c.sink.StoreReading(opCtx, op.dayIndex, op.reading)
			})
		}
	}
}

// applyPendingClear очищает зеркало, если был сброс. false, если очистка не удалась.
func (c *Collector) applyPendingClear(ctx context.Context) bool {
	if !c.clearPending.Swap(false) {
		return true
	}
	if err := c.applySink(ctx, "clear", c.sink.Clear); err != nil {
		// Повторим перед следующей записью
		c.clearPending.Store(true)
		return false
	}
	return true
}

func (c *Collector) applySink(ctx context.Context, operation string, apply func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := apply(opCtx); err != nil {
		metrics.RedisOperations.WithLabelValues(operation, "error").Inc()
		c.logger.Warn("failed to mirror reading", zap.String("operation", operation), zap.Error(err))
		return err
	}
	metrics.RedisOperations.WithLabelValues(operation, "success").Inc()
	return nil
}
