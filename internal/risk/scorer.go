package risk

import (
	"fmt"
	"math"
)

// Scorer maps a feature vector to a risk score in [0,1].
type Scorer interface {
	Score(fv FeatureVector) (float64, error)
}

// LogisticScorer applies the logistic function to the model's linear combination.
type LogisticScorer struct {
	model *Model
}

func NewLogisticScorer(model *Model) *LogisticScorer {
	return &LogisticScorer{model: model}
}

// Model returns the scorer's coefficients.
func (s *LogisticScorer) Model() *Model {
	return s.model
}

func (s *LogisticScorer) Score(fv FeatureVector) (float64, error) {
	if s.model == nil {
		return 0, ErrModelUnavailable
	}

	values := fv.Values()
	z := s.model.Intercept
	for _, name := range FeatureNames {
		z += s.model.Weights[name] * values[name]
	}

	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("score is not a number (z=%v)", z)
	}
	return p, nil
}
