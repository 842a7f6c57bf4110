// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/rs/zerolog"

	"github.com/born-ml/classnorm/internal/nn"
	"github.com/born-ml/classnorm/internal/parallel"
	"github.com/born-ml/classnorm/tensor"
)

// DefaultNumClasses is the class count of DefaultLossConfig.
const DefaultNumClasses = nn.DefaultNumClasses

// LossConfig configures a SoftmaxClassNormalizedLoss.
type LossConfig = nn.LossConfig

// DefaultLossConfig returns a two-class, normalized configuration without an
// ignore label.
func DefaultLossConfig() LossConfig {
	return nn.DefaultLossConfig()
}

// SoftmaxClassNormalizedLoss is the class-normalized softmax loss layer.
type SoftmaxClassNormalizedLoss = nn.SoftmaxClassNormalizedLoss

// LossOption customizes a SoftmaxClassNormalizedLoss.
type LossOption = nn.LossOption

// PropagateDown selects which inputs Backward differentiates.
type PropagateDown = nn.PropagateDown

// ProbabilityTransform maps scores to per-position class probabilities.
type ProbabilityTransform = nn.ProbabilityTransform

// ClassCounts holds the number of positions per class in one example.
type ClassCounts = nn.ClassCounts

// ParallelConfig controls how the loss spreads examples across goroutines.
type ParallelConfig = parallel.Config

// NewSoftmaxClassNormalizedLoss validates cfg and creates the loss.
//
// Example:
//
//	loss, err := nn.NewSoftmaxClassNormalizedLoss(nn.DefaultLossConfig(),
//	    nn.WithParallel(nn.SequentialParallel()))
func NewSoftmaxClassNormalizedLoss(cfg LossConfig, opts ...LossOption) (*SoftmaxClassNormalizedLoss, error) {
	return nn.NewSoftmaxClassNormalizedLoss(cfg, opts...)
}

// WithLogger sets the logger used for setup and reshape messages.
func WithLogger(logger zerolog.Logger) LossOption {
	return nn.WithLogger(logger)
}

// WithParallel sets the parallel execution config.
func WithParallel(cfg ParallelConfig) LossOption {
	return nn.WithParallel(cfg)
}

// WithTransform replaces the channel softmax.
func WithTransform(t ProbabilityTransform) LossOption {
	return nn.WithTransform(t)
}

// DefaultParallel returns the default parallel config.
func DefaultParallel() ParallelConfig {
	return parallel.DefaultConfig()
}

// SequentialParallel returns a config that runs on the calling goroutine.
func SequentialParallel() ParallelConfig {
	return parallel.Sequential()
}

// NewChannelSoftmax creates the default probability transform.
func NewChannelSoftmax(cfg ParallelConfig) ProbabilityTransform {
	return nn.NewChannelSoftmax(cfg)
}

// CountClasses counts the non-ignored labels of one example.
func CountClasses(labels []int32, cfg LossConfig) (ClassCounts, error) {
	return nn.CountClasses(labels, cfg)
}

// Errors returned by the loss.
var (
	ErrInvalidConfig    = nn.ErrInvalidConfig
	ErrUnnormalized     = nn.ErrUnnormalized
	ErrChannelMismatch  = nn.ErrChannelMismatch
	ErrLabelShape       = nn.ErrLabelShape
	ErrLabelOutOfRange  = nn.ErrLabelOutOfRange
	ErrLabelGradient    = nn.ErrLabelGradient
	ErrNoForward        = nn.ErrNoForward
	ErrGradShape        = nn.ErrGradShape
	ErrUnsupportedDType = nn.ErrUnsupportedDType
)

// NewScoresGrad allocates a zeroed gradient tensor matching scores.
func NewScoresGrad(scores *tensor.RawTensor) (*tensor.RawTensor, error) {
	return tensor.NewRaw(scores.Shape(), scores.DType())
}
