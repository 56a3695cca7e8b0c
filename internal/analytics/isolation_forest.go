package analytics

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// Inlier ответ классификатора для нормальной точки
	Inlier = 1
	// Outlier ответ классификатора для выброса
	Outlier = -1

	leafNode   = -1
	eulerGamma = 0.5772156649015329
)

// Classifier обученный классификатор выбросов
type Classifier interface {
	// Predict возвращает Inlier или Outlier для масштабированного вектора
	Predict(features []float64) (int, error)
	// NumFeatures размерность входного вектора
	NumFeatures() int
}

// IsolationTree одно дерево в формате экспорта (массивы узлов)
type IsolationTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NNodeSamples  []int     `json:"n_node_samples"`
}

// IsolationForest изолирующий лес
type IsolationForest struct {
	Features   int             `json:"n_features"`
	MaxSamples int             `json:"max_samples"`
	Offset     float64         `json:"offset"`
	Trees      []IsolationTree `json:"trees"`
}

// ParseIsolationForest разбирает и проверяет JSON-артефакт модели
func ParseIsolationForest(data []byte) (*IsolationForest, error) {
	var f IsolationForest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse model: %v", ErrArtifact, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *IsolationForest) validate() error {
	if f.Features <= 0 {
		return fmt.Errorf("%w: model n_features must be positive", ErrArtifact)
	}
	if f.MaxSamples <= 0 {
		return fmt.Errorf("%w: model max_samples must be positive", ErrArtifact)
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: model has no trees", ErrArtifact)
	}

	for i, t := range f.Trees {
		n := len(t.ChildrenLeft)
		if n == 0 || len(t.ChildrenRight) != n || len(t.Feature) != n ||
			len(t.Threshold) != n || len(t.NNodeSamples) != n {
			return fmt.Errorf("%w: tree %d has inconsistent node arrays", ErrArtifact, i)
		}
		for node := 0; node < n; node++ {
			left, right := t.ChildrenLeft[node], t.ChildrenRight[node]
			if left == leafNode {
				continue
			}
			// Дочерние узлы всегда идут после родителя, что исключает циклы
			if left <= node || left >= n || right <= node || right >= n {
				return fmt.Errorf("%w: tree %d node %d has invalid children", ErrArtifact, i, node)
			}
			if t.Feature[node] < 0 || t.Feature[node] >= f.Features {
				return fmt.Errorf("%w: tree %d node %d splits on unknown feature %d", ErrArtifact, i, node, t.Feature[node])
			}
		}
	}
	return nil
}

// NumFeatures размерность входного вектора
func (f *IsolationForest) NumFeatures() int {
	return f.Features
}

// ScoreSamples оценка аномальности: чем меньше, тем аномальнее (в диапазоне [-1, 0])
func (f *IsolationForest) ScoreSamples(features []float64) (float64, error) {
	if len(features) != f.Features {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", ErrDimensionMismatch, f.Features, len(features))
	}

	depths := make([]float64, len(f.Trees))
	for i := range f.Trees {
		depths[i] = f.Trees[i].pathLength(features)
	}

	norm := averagePathLength(f.MaxSamples)
	if norm == 0 {
		return -1, nil
	}
	return -math.Pow(2, -stat.Mean(depths, nil)/norm), nil
}

// Predict возвращает Outlier, если оценка ниже порога offset
func (f *IsolationForest) Predict(features []float64) (int, error) {
	score, err := f.ScoreSamples(features)
	if err != nil {
		return 0, err
	}
	if score-f.Offset < 0 {
		return Outlier, nil
	}
	return Inlier, nil
}

// pathLength глубина листа плюс поправка на размер листа
func (t *IsolationTree) pathLength(features []float64) float64 {
	node, depth := 0, 0
	for t.ChildrenLeft[node] != leafNode {
		if features[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
		depth++
	}
	return float64(depth) + averagePathLength(t.NNodeSamples[node])
}

// averagePathLength средняя длина пути неуспешного поиска в BST из n элементов
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
