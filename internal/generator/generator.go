package generator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"water-anomaly-monitor/internal/models"
)

// ErrInvalidStatistics некорректная запись в таблице статистик
var ErrInvalidStatistics = errors.New("invalid feature statistics")

// FeatureStat среднее и стандартное отклонение одного сигнала
type FeatureStat struct {
	Name   string
	Mean   float64
	StdDev float64
}

// FeatureTable таблица статистик в порядке признаков модели
type FeatureTable []FeatureStat

// DefaultTable статистики, по которым обучалась модель
var DefaultTable = FeatureTable{
	{Name: models.SignalBatteryV, Mean: 3.625691, StdDev: 0.049711},
	{Name: models.SignalWaterTemperature, Mean: 26.393680, StdDev: 0.155034},
	{Name: models.SignalWaterLevel, Mean: -5.996789, StdDev: 4.034594},
	{Name: models.SignalBarometricPressure, Mean: 952.831166, StdDev: 5.905373},
}

// DefaultStartDate дата нулевого дня
var DefaultStartDate = time.Date(2024, time.October, 9, 0, 0, 0, 0, time.UTC)

var requiredSignals = []string{
	models.SignalBatteryV,
	models.SignalWaterTemperature,
	models.SignalWaterLevel,
	models.SignalBarometricPressure,
}

// Validate проверяет, что таблица содержит все четыре сигнала с корректными параметрами
func (t FeatureTable) Validate() error {
	if len(t) != len(requiredSignals) {
		return fmt.Errorf("%w: expected %d signals, got %d", ErrInvalidStatistics, len(requiredSignals), len(t))
	}
	for i, stat := range t {
		if stat.Name != requiredSignals[i] {
			return fmt.Errorf("%w: position %d must be %s, got %q", ErrInvalidStatistics, i, requiredSignals[i], stat.Name)
		}
		if math.IsNaN(stat.Mean) || math.IsInf(stat.Mean, 0) {
			return fmt.Errorf("%w: %s mean is not finite", ErrInvalidStatistics, stat.Name)
		}
		if math.IsNaN(stat.StdDev) || math.IsInf(stat.StdDev, 0) || stat.StdDev <= 0 {
			return fmt.Errorf("%w: %s stddev must be positive, got %v", ErrInvalidStatistics, stat.Name, stat.StdDev)
		}
	}
	return nil
}

// Generator генерирует синтетические показания по таблице статистик
type Generator struct {
	table FeatureTable
	start time.Time
	mu    sync.Mutex
	dists []distuv.Normal
}

// NewGenerator создает генератор. seed == 0 означает засев от текущего времени.
func NewGenerator(table FeatureTable, start time.Time, seed uint64) (*Generator, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)

	dists := make([]distuv.Normal, len(table))
	for i, stat := range table {
		dists[i] = distuv.Normal{Mu: stat.Mean, Sigma: stat.StdDev, Src: src}
	}

	y, m, d := start.Date()
	return &Generator{
		table: table,
		start: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		dists: dists,
	}, nil
}

// Generate возвращает показание для дня dayIndex. Поле Anomaly не заполняется.
func (g *Generator) Generate(dayIndex int) models.Reading {
	g.mu.Lock()
	values := make([]float64, len(g.dists))
	for i := range g.dists {
		values[i] = g.dists[i].Rand()
	}
	g.mu.Unlock()

	return models.Reading{
		BatteryV:           values[0],
		WaterTemperature:   values[1],
		WaterLevel:         values[2],
		BarometricPressure: values[3],
		DateTime:           g.DateFor(dayIndex),
	}
}

// DateFor возвращает Date_Time для дня dayIndex
func (g *Generator) DateFor(dayIndex int) string {
	return g.start.AddDate(0, 0, dayIndex).Format(models.DateTimeLayout)
}

// StartDate возвращает дату нулевого дня
func (g *Generator) StartDate() time.Time {
	return g.start
}
