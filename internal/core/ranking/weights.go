package ranking

import (
	"math"

	"github.com/agenthands/argus/internal/core/model"
)

const (
	DefaultMinScore = 0.1

	weightSumTolerance = 1e-9
)

// Weights are the fusion coefficients of the four ranking signals.
type Weights struct {
	Semantic          float64 `toml:"semantic" json:"semantic"`
	Structural        float64 `toml:"structural" json:"structural"`
	EdgeConfidence    float64 `toml:"edge_confidence" json:"edge_confidence"`
	SourceReliability float64 `toml:"source_reliability" json:"source_reliability"`
}

func DefaultWeights() Weights {
	return Weights{Semantic: 0.4, Structural: 0.2, EdgeConfidence: 0.25, SourceReliability: 0.15}
}

// Validate requires non-negative, finite weights summing to 1.
func (w Weights) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"semantic", w.Semantic},
		{"structural", w.Structural},
		{"edge_confidence", w.EdgeConfidence},
		{"source_reliability", w.SourceReliability},
	}
	var sum float64
	for _, f := range fields {
		if f.v < 0 || math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return model.NewConfigurationError("engine.weights."+f.name, "must be a non-negative number, got %v", f.v)
		}
		sum += f.v
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return model.NewConfigurationError("engine.weights", "must sum to 1.0, got %v", sum)
	}
	return nil
}

// effective zeroes the weights of unavailable signals and rescales the rest to sum to 1.
func (w Weights) effective(semantic, structural bool) Weights {
	if !semantic {
		w.Semantic = 0
	}
	if !structural {
		w.Structural = 0
	}
	sum := w.Semantic + w.Structural + w.EdgeConfidence + w.SourceReliability
	if sum == 0 {
		return w
	}
	return Weights{
		Semantic:          w.Semantic / sum,
		Structural:        w.Structural / sum,
		EdgeConfidence:    w.EdgeConfidence / sum,
		SourceReliability: w.SourceReliability / sum,
	}
}
