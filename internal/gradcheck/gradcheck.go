// Package gradcheck compares the analytic gradient of a loss with a
// finite-difference estimate.
package gradcheck

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/born-ml/classnorm/internal/nn"
	"github.com/born-ml/classnorm/internal/tensor"
)

// Loss is the forward/backward contract being checked.
type Loss interface {
	Forward(ctx context.Context, scores, labels *tensor.RawTensor) (float64, error)
	Backward(ctx context.Context, lossWeight float64, down nn.PropagateDown, labels, scoresGrad *tensor.RawTensor) error
}

// Settings controls a gradient check.
type Settings struct {
	// Step is the finite-difference step. Zero picks a step suited to the
	// score dtype.
	Step float64

	// Tolerance is the largest accepted |analytic - numeric|, relative to
	// max(1, |numeric|).
	Tolerance float64

	// LossWeight is passed to Backward; the numeric gradient is scaled by it.
	LossWeight float64

	// Indices restricts the check to these flat score indices. Empty checks
	// every entry.
	Indices []int
}

// DefaultSettings returns settings for a full check with loss weight 1.
func DefaultSettings() Settings {
	return Settings{
		Tolerance:  1e-4,
		LossWeight: 1,
	}
}

// Result holds the outcome of a check.
type Result struct {
	Indices  []int
	Analytic []float64
	Numeric  []float64

	// MaxError is the largest relative error, found at Indices[Worst].
	MaxError float64
	Worst    int
}

// OK reports whether every checked entry is within tol.
func (r *Result) OK(tol float64) bool {
	return r.MaxError <= tol
}

// Check runs Forward and Backward once on scores and labels, then estimates
// each checked derivative with central differences of Forward.
//
// scores is left unchanged. Forward is called sequentially, so the loss does
// not have to be safe for concurrent use.
func Check(ctx context.Context, loss Loss, scores, labels *tensor.RawTensor, s Settings) (*Result, error) {
	if s.Step == 0 {
		s.Step = defaultStep(scores.DType())
	}

	if _, err := loss.Forward(ctx, scores, labels); err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	grad, err := tensor.NewRaw(scores.Shape(), scores.DType())
	if err != nil {
		return nil, err
	}
	if err := loss.Backward(ctx, s.LossWeight, nn.PropagateDown{Scores: true}, labels, grad); err != nil {
		return nil, fmt.Errorf("backward: %w", err)
	}
	analyticAll := grad.Float64s()

	indices := s.Indices
	if len(indices) == 0 {
		indices = make([]int, scores.NumElements())
		for i := range indices {
			indices[i] = i
		}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= scores.NumElements() {
			return nil, fmt.Errorf("index %d outside scores %v", idx, scores.Shape())
		}
	}

	x0 := scores.Float64s()
	probe, err := tensor.NewRaw(scores.Shape(), scores.DType())
	if err != nil {
		return nil, err
	}

	var evalErr error
	f := func(x []float64) float64 {
		for i, v := range x {
			probe.SetFloat64(i, v)
		}
		l, err := loss.Forward(ctx, probe, labels)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		return l
	}

	settings := &fd.Settings{Formula: fd.Central, Step: s.Step}
	numeric := make([]float64, len(indices))
	if len(s.Indices) == 0 {
		fd.Gradient(numeric, f, x0, settings)
	} else {
		x := append([]float64(nil), x0...)
		for k, idx := range indices {
			numeric[k] = fd.Derivative(func(v float64) float64 {
				x[idx] = v
				return f(x)
			}, x0[idx], settings)
			x[idx] = x0[idx]
		}
	}
	if evalErr != nil {
		return nil, fmt.Errorf("finite difference forward: %w", evalErr)
	}

	r := &Result{
		Indices:  indices,
		Analytic: make([]float64, len(indices)),
		Numeric:  numeric,
	}
	for k, idx := range indices {
		numeric[k] *= s.LossWeight
		r.Analytic[k] = analyticAll[idx]

		e := math.Abs(r.Analytic[k]-numeric[k]) / max(1, math.Abs(numeric[k]))
		if e > r.MaxError {
			r.MaxError = e
			r.Worst = k
		}
	}
	return r, nil
}

func defaultStep(dt tensor.DataType) float64 {
	if dt == tensor.Float32 {
		return 1e-2
	}
	return 1e-6
}
