package analytics

import (
	"encoding/json"
	"fmt"
)

// StandardScaler параметры обученного скейлера признаков
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ParseScaler разбирает JSON-артефакт скейлера
func ParseScaler(data []byte) (*StandardScaler, error) {
	var s StandardScaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scaler: %v", ErrArtifact, err)
	}
	if len(s.Mean) == 0 {
		return nil, fmt.Errorf("%w: scaler has no features", ErrArtifact)
	}
	if len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("%w: scaler mean has %d values, scale has %d", ErrArtifact, len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// NumFeatures количество признаков
func (s *StandardScaler) NumFeatures() int {
	return len(s.Mean)
}

// Transform масштабирует вектор признаков
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, fmt.Errorf("%w: scaler expects %d features, got %d", ErrDimensionMismatch, len(s.Mean), len(features))
	}

	scaled := make([]float64, len(features))
	for i, v := range features {
		if s.Scale[i] != 0 {
			scaled[i] = (v - s.Mean[i]) / s.Scale[i]
		} else {
			// Нулевой масштаб: только центрируем
			scaled[i] = v - s.Mean[i]
		}
	}
	return scaled, nil
}
