package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"water-anomaly-monitor/internal/models"
)

var (
	// ErrArtifact артефакт скейлера или модели отсутствует или поврежден
	ErrArtifact = errors.New("model artifact error")
	// ErrInvalidFeatures в показании есть NaN или бесконечность
	ErrInvalidFeatures = errors.New("invalid features")
	// ErrDimensionMismatch размерности признаков не совпадают
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// Scorer скейлер + классификатор
type Scorer struct {
	scaler     *StandardScaler
	classifier Classifier
}

// NewScorer проверяет согласованность скейлера и классификатора
func NewScorer(scaler *StandardScaler, classifier Classifier) (*Scorer, error) {
	if scaler == nil || classifier == nil {
		return nil, fmt.Errorf("%w: scaler and classifier are required", ErrArtifact)
	}
	if scaler.NumFeatures() != classifier.NumFeatures() {
		return nil, fmt.Errorf("%w: scaler has %d features, model has %d",
			ErrDimensionMismatch, scaler.NumFeatures(), classifier.NumFeatures())
	}
	return &Scorer{scaler: scaler, classifier: classifier}, nil
}

// LoadScorer загружает артефакты по путям или s3:// URI
func LoadScorer(ctx context.Context, fetcher Fetcher, scalerURI, modelURI string) (*Scorer, error) {
	scalerData, err := fetcher.Fetch(ctx, scalerURI)
	if err != nil {
		return nil, fmt.Errorf("failed to load scaler: %w", err)
	}
	scaler, err := ParseScaler(scalerData)
	if err != nil {
		return nil, err
	}

	modelData, err := fetcher.Fetch(ctx, modelURI)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	model, err := ParseIsolationForest(modelData)
	if err != nil {
		return nil, err
	}

	return NewScorer(scaler, model)
}

// Score возвращает "Yes", если классификатор считает показание выбросом
func (s *Scorer) Score(reading models.Reading) (models.Anomaly, error) {
	features := reading.Features()
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("%w: feature %d is %v", ErrInvalidFeatures, i, v)
		}
	}

	scaled, err := s.scaler.Transform(features)
	if err != nil {
		return "", err
	}

	prediction, err := s.classifier.Predict(scaled)
	if err != nil {
		return "", err
	}

	if prediction == Outlier {
		return models.AnomalyYes, nil
	}
	return models.AnomalyNo, nil
}
