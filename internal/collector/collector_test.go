package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water-anomaly-monitor/internal/generator"
	"water-anomaly-monitor/internal/models"
)

type stubScorer struct {
	mu     sync.Mutex
	labels []models.Anomaly
	errs   []error
	calls  int
}

func (s *stubScorer) Score(models.Reading) (models.Anomaly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.labels) {
		return s.labels[i], nil
	}
	return models.AnomalyNo, nil
}

type panicGenerator struct{}

func (panicGenerator) Generate(int) models.Reading {
	panic("broken table")
}

type recordingSink struct {
	mu  sync.Mutex
	ops []string
}

func (s *recordingSink) StoreReading(_ context.Context, _ int, r models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "store "+r.DateTime)
	return nil
}

func (s *recordingSink) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "clear")
	return nil
}

func (s *recordingSink) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// gatedSink держит записи, пока не закрыт gate
type gatedSink struct {
	recordingSink
	entered chan struct{}
	gate    chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (s *gatedSink) StoreReading(ctx context.Context, day int, r models.Reading) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	return s.recordingSink.StoreReading(ctx, day, r)
}

// flakySink отказывает в первых failClears очистках
type flakySink struct {
	recordingSink
	failClears int
}

func (s *flakySink) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.failClears > 0 {
		s.failClears--
		s.ops = append(s.ops, "clear failed")
		s.mu.Unlock()
		return errors.New("redis unavailable")
	}
	s.mu.Unlock()
	return s.recordingSink.Clear(ctx)
}

func newGenerator(t *testing.T) *generator.Generator {
	t.Helper()
	g, err := generator.NewGenerator(generator.DefaultTable, generator.DefaultStartDate, 42)
	require.NoError(t, err)
	return g
}

func TestStepAppendsInGenerationOrder(t *testing.T) {
	g := newGenerator(t)
	c := NewCollector(g, &stubScorer{}, time.Hour)

	for i := 0; i < 5; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}

	readings := c.Snapshot()
	require.Len(t, readings, 5)
	for i, r := range readings {
		assert.Equal(t, g.DateFor(i), r.DateTime)
		assert.Contains(t, []models.Anomaly{models.AnomalyYes, models.AnomalyNo}, r.Anomaly)
	}
	assert.Equal(t, 5, c.DayIndex())
	assert.Equal(t, "2024-10-09T00:00:00", readings[0].DateTime)
	assert.Equal(t, "2024-10-10T00:00:00", readings[1].DateTime)
}

func TestStepAttachesScore(t *testing.T) {
	scorer := &stubScorer{labels: []models.Anomaly{models.AnomalyYes, models.AnomalyNo}}
	c := NewCollector(newGenerator(t), scorer, time.Hour)

	first, err := c.Step()
	require.NoError(t, err)
	second, err := c.Step()
	require.NoError(t, err)

	assert.Equal(t, models.AnomalyYes, first.Anomaly)
	assert.Equal(t, models.AnomalyNo, second.Anomaly)
	assert.Equal(t, 1, c.Stats()["anomalies"])
}

func TestResetClearsStateAndIsIdempotent(t *testing.T) {
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour)
	for i := 0; i < 3; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}

	c.Reset()
	assert.Empty(t, c.Snapshot())
	assert.NotNil(t, c.Snapshot())
	assert.Equal(t, 0, c.DayIndex())

	c.Reset()
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.DayIndex())

	next, err := c.Step()
	require.NoError(t, err)
	assert.Equal(t, "2024-10-09T00:00:00", next.DateTime)
}

func TestScoringFailureSkipsStep(t *testing.T) {
	scorer := &stubScorer{errs: []error{errors.New("nan feature")}}
	c := NewCollector(newGenerator(t), scorer, time.Hour)

	_, err := c.Step()
	require.Error(t, err)
	assert.Empty(t, c.Snapshot())
	assert.Equal(t, 0, c.DayIndex())
	assert.Equal(t, 1, c.Stats()["failed_steps"])

	r, err := c.Step()
	require.NoError(t, err)
	assert.Equal(t, "2024-10-09T00:00:00", r.DateTime)
	assert.Equal(t, 1, c.DayIndex())
}

func TestUnexpectedLabelIsRejected(t *testing.T) {
	scorer := &stubScorer{labels: []models.Anomaly{"Maybe"}}
	c := NewCollector(newGenerator(t), scorer, time.Hour)

	_, err := c.Step()
	assert.Error(t, err)
	assert.Empty(t, c.Snapshot())
}

func TestSafeStepRecoversPanic(t *testing.T) {
	c := NewCollector(panicGenerator{}, &stubScorer{}, time.Hour)

	err := c.safeStep()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken table")
	assert.Equal(t, 1, c.Stats()["failed_steps"])

	// Блокировка освобождена
	assert.Empty(t, c.Snapshot())
}

func TestStartOnlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour)

	assert.True(t, c.Start(ctx))
	assert.False(t, c.Start(ctx))
	assert.True(t, c.Running())

	// Первый шаг только после первого интервала
	assert.Empty(t, c.Snapshot())

	cancel()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.False(t, c.Running())
}

func TestStartGeneratesPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := newGenerator(t)
	c := NewCollector(g, &stubScorer{}, 5*time.Millisecond)
	require.True(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		return len(c.Snapshot()) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	for i, r := range c.Snapshot() {
		assert.Equal(t, g.DateFor(i), r.DateTime)
	}
}

func TestLoopSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scorer := &stubScorer{errs: []error{errors.New("first"), errors.New("second")}}
	c := NewCollector(newGenerator(t), scorer, 5*time.Millisecond)
	require.True(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		return len(c.Snapshot()) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "2024-10-09T00:00:00", c.Snapshot()[0].DateTime)
}

func TestConcurrentStepsResetsAndReads(t *testing.T) {
	g := newGenerator(t)
	c := NewCollector(g, &stubScorer{}, time.Hour)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, _ = c.Step()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			c.Reset()
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			for idx, r := range c.Snapshot() {
				if r.DateTime != g.DateFor(idx) {
					t.Errorf("reading %d has date %s", idx, r.DateTime)
					return
				}
			}
		}
	}()

	wg.Wait()

	readings := c.Snapshot()
	assert.Equal(t, len(readings), c.DayIndex())
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour)
	_, err := c.Step()
	require.NoError(t, err)

	snap := c.Snapshot()
	snap[0].Anomaly = "tampered"

	assert.NotEqual(t, models.Anomaly("tampered"), c.Snapshot()[0].Anomaly)
}

func TestSinkReceivesOperationsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &recordingSink{}
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour, WithSink(sink))
	require.True(t, c.Start(ctx))

	_, err := c.Step()
	require.NoError(t, err)
	_, err = c.Step()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(sink.recorded()) == 2
	}, time.Second, 5*time.Millisecond)
	c.Reset()
	_, err = c.Step()
	require.NoError(t, err)

	want := []string{
		"store 2024-10-09T00:00:00",
		"store 2024-10-10T00:00:00",
		"clear",
		"store 2024-10-09T00:00:00",
	}
	require.Eventually(t, func() bool {
		return len(sink.recorded()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.recorded())
	assert.Equal(t, true, c.Stats()["sink_enabled"])
}

func TestResetClearsMirrorWhenQueueIsFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := newGatedSink()
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour, WithSink(sink))
	c.sinkQueue = make(chan sinkOp, 2)
	require.True(t, c.Start(ctx))

	// Первая запись зависает в зеркале, следующие заполняют очередь
	_, err := c.Step()
	require.NoError(t, err)
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("mirror write did not start")
	}
	for i := 0; i < 3; i++ {
		_, err = c.Step()
		require.NoError(t, err)
	}
	require.Len(t, c.sinkQueue, 2)

	c.Reset()
	assert.Empty(t, c.sinkQueue)
	assert.True(t, c.clearPending.Load())

	_, err = c.Step()
	require.NoError(t, err)
	close(sink.gate)

	want := []string{
		"store 2024-10-09T00:00:00",
		"clear",
		"store 2024-10-09T00:00:00",
	}
	require.Eventually(t, func() bool {
		return len(sink.recorded()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.recorded())
}

func TestFailedClearIsRetriedBeforeNextStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &flakySink{failClears: 1}
	c := NewCollector(newGenerator(t), &stubScorer{}, time.Hour, WithSink(sink))
	require.True(t, c.Start(ctx))

	c.Reset()
	require.Eventually(t, func() bool {
		return len(sink.recorded()) == 1 && c.clearPending.Load()
	}, time.Second, 5*time.Millisecond)

	_, err := c.Step()
	require.NoError(t, err)

	want := []string{"clear failed", "clear", "store 2024-10-09T00:00:00"}
	require.Eventually(t, func() bool {
		return len(sink.recorded()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, sink.recorded())
	assert.False(t, c.clearPending.Load())
}
