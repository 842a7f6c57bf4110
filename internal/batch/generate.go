package batch

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/classnorm/internal/tensor"
)

// GenerateConfig describes a random batch.
type GenerateConfig struct {
	Num, Classes, Height, Width int
	DType                       tensor.DataType

	// ForegroundFraction is the chance a position gets a non-zero class.
	ForegroundFraction float64

	// IgnoreFraction is the chance a position gets IgnoreLabel. Zero leaves
	// the batch without an ignore label.
	IgnoreFraction float64
	IgnoreLabel    int

	// ScoreScale is the standard deviation of the generated scores.
	ScoreScale float64
	Seed       uint64
}

// DefaultGenerateConfig returns a small two-class batch with a mostly
// background label map.
func DefaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		Num:                2,
		Classes:            2,
		Height:             8,
		Width:              8,
		DType:              tensor.Float32,
		ForegroundFraction: 0.1,
		IgnoreFraction:     0.05,
		IgnoreLabel:        255,
		ScoreScale:         2,
		Seed:               1,
	}
}

// Generate draws a random batch.
func Generate(cfg GenerateConfig) (*Batch, error) {
	if cfg.Classes < 2 {
		return nil, fmt.Errorf("classes must be >= 2, got %d", cfg.Classes)
	}
	shape := tensor.Shape{cfg.Num, cfg.Classes, cfg.Height, cfg.Width}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	//nolint:gosec // math/rand is appropriate for synthetic batches
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	scores := make([]float64, shape.NumElements())
	for i := range scores {
		scores[i] = rng.NormFloat64() * cfg.ScoreScale
	}

	labels := make([]int32, cfg.Num*cfg.Height*cfg.Width)
	for i := range labels {
		switch u := rng.Float64(); {
		case u < cfg.IgnoreFraction:
			labels[i] = int32(cfg.IgnoreLabel)
		case u < cfg.IgnoreFraction+cfg.ForegroundFraction:
			labels[i] = int32(1 + rng.IntN(cfg.Classes-1))
		}
	}

	b := &Batch{
		Version: FormatVersion,
		DType:   cfg.DType.String(),
		Shape:   shape,
		Scores:  scores,
		Labels:  labels,
	}
	if cfg.IgnoreFraction > 0 {
		ignore := cfg.IgnoreLabel
		b.IgnoreLabel = &ignore
	}
	return b, nil
}
