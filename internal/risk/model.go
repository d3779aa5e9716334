package risk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgecomet/siteguard/internal/common/yamlutil"
)

// Model holds the coefficients of a logistic regression over FeatureVector.
// Features absent from Weights contribute nothing.
type Model struct {
	Version   string             `yaml:"version" json:"version"`
	Intercept float64            `yaml:"intercept" json:"intercept"`
	Weights   map[string]float64 `yaml:"weights" json:"weights"`
}

// DefaultModel returns the built-in weights. They separate short https
// sites from long http URLs carrying credential bait or raw IPs.
func DefaultModel() *Model {
	return &Model{
		Version:   "builtin-1",
		Intercept: -1.0,
		Weights: map[string]float64{
			FeatureLength:          0.02,
			FeatureDigits:          0.1,
			FeatureDots:            0.3,
			FeatureHTTPS:           -1.5,
			FeatureSuspiciousWords: 2.5,
			FeatureHasIP:           2.0,
		},
	}
}

// LoadModel reads a model file. The format follows the extension:
// .yaml/.yml or .json.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var m Model
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yamlutil.UnmarshalStrict(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported model file extension %q (want .yaml, .yml or .json)", ext)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", path, err)
	}

	return &m, nil
}

// Validate rejects weights for unknown features and non-finite coefficients.
func (m *Model) Validate() error {
	if math.IsNaN(m.Intercept) || math.IsInf(m.Intercept, 0) {
		return fmt.Errorf("intercept must be finite")
	}
	if len(m.Weights) == 0 {
		return fmt.Errorf("weights must not be empty")
	}
	for name, w := range m.Weights {
		if !isFeature(name) {
			return fmt.Errorf("unknown feature %q in weights", name)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q must be finite", name)
		}
	}
	return nil
}
