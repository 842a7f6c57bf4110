// Package nn implements the softmax class-normalized loss layer.
//
// The loss weights every position by the inverse frequency of its label
// within the same example, so a small foreground region counts as much as
// the background around it.
package nn

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/classnorm/internal/parallel"
	"github.com/born-ml/classnorm/internal/tensor"
)

// probFloor is the smallest normal float32 (FLT_MIN). Probabilities are
// clamped to it before taking the log.
const probFloor = 0x1p-126

var tracer = otel.Tracer("github.com/born-ml/classnorm/internal/nn")

// PropagateDown says which inputs of Backward need a gradient.
type PropagateDown struct {
	Scores bool
	Labels bool
}

// LossOption configures a SoftmaxClassNormalizedLoss.
type LossOption func(*SoftmaxClassNormalizedLoss)

// WithLogger sets the logger used for setup and reshape events.
func WithLogger(logger zerolog.Logger) LossOption {
	return func(l *SoftmaxClassNormalizedLoss) {
		l.logger = logger
	}
}

// WithParallel sets how work is split across examples.
func WithParallel(cfg parallel.Config) LossOption {
	return func(l *SoftmaxClassNormalizedLoss) {
		l.parallel = cfg
	}
}

// WithTransform replaces the default ChannelSoftmax probability transform.
func WithTransform(t ProbabilityTransform) LossOption {
	return func(l *SoftmaxClassNormalizedLoss) {
		l.transform = t
	}
}

// SoftmaxClassNormalizedLoss computes the multinomial logistic loss of a
// per-position classification, passing the scores through a softmax and
// normalizing each position by the number of positions of its class in
// the same example.
//
// Forward (per example i, over non-ignored positions j with label v):
//
//	loss_i = Σ_j -log(max(p[v, j], FLT_MIN)) / count_i[v]
//	loss   = Σ_i loss_i / N
//
// Backward:
//
//	∂L/∂s[c, j] = (p[c, j] - 1[c = v]) / count_i[v] * lossWeight / N
//
// and exactly 0 for every channel of an ignored position.
//
// Inputs are a score tensor [N, C, ...] and a label tensor holding
// N * spatial labels ([N, 1, H, W] or [N, H, W]). The probability buffer is
// owned by the loss and reused across calls, so a single loss must not run
// Forward or Backward concurrently with itself.
type SoftmaxClassNormalizedLoss struct {
	cfg       LossConfig
	transform ProbabilityTransform
	parallel  parallel.Config
	logger    zerolog.Logger

	prob      *tensor.RawTensor
	forwarded bool
}

// NewSoftmaxClassNormalizedLoss validates cfg and creates the loss.
func NewSoftmaxClassNormalizedLoss(cfg LossConfig, opts ...LossOption) (*SoftmaxClassNormalizedLoss, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &SoftmaxClassNormalizedLoss{
		cfg:      cfg,
		parallel: parallel.DefaultConfig(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.transform == nil {
		l.transform = NewChannelSoftmax(l.parallel)
	}
	l.logger = l.logger.With().Str("layer", "SoftmaxClassNormalizedLoss").Logger()

	event := l.logger.Debug().Int("num_classes", cfg.NumClasses)
	if cfg.HasIgnoreLabel {
		event = event.Int("ignore_label", cfg.IgnoreLabel)
	}
	event.Msg("loss configured")

	return l, nil
}

// Config returns the loss configuration.
func (l *SoftmaxClassNormalizedLoss) Config() LossConfig {
	return l.cfg
}

// Setup validates the input shapes and sizes the probability buffer.
//
// Forward calls Setup on every pass, so shape changes are picked up
// automatically; calling it directly lets a harness fail before the first batch.
func (l *SoftmaxClassNormalizedLoss) Setup(scores, labels *tensor.RawTensor) error {
	shape := scores.Shape()
	if len(shape) < 2 {
		return fmt.Errorf("%w: scores must be [N, C, ...], got %v", ErrChannelMismatch, shape)
	}
	if shape.Channels() != l.cfg.NumClasses {
		return fmt.Errorf("%w: scores must have exactly %d channels, got %d",
			ErrChannelMismatch, l.cfg.NumClasses, shape.Channels())
	}
	if !scores.DType().IsFloat() {
		return fmt.Errorf("%w: scores of type %s", ErrUnsupportedDType, scores.DType())
	}
	if err := checkLabelShape(shape, labels.Shape()); err != nil {
		return err
	}

	if l.prob != nil && l.prob.Shape().Equal(shape) && l.prob.DType() == scores.DType() {
		return nil
	}

	prob, err := tensor.NewRaw(shape, scores.DType())
	if err != nil {
		return err
	}
	if l.prob != nil {
		if !l.prob.IsUnique() {
			l.logger.Debug().Msg("probability views still hold the previous buffer")
		}
		l.prob.Release()
	}
	l.prob = prob
	l.forwarded = false

	l.logger.Debug().
		Int("num", shape.Num()).
		Int("channels", shape.Channels()).
		Int("spatial", shape.SpatialDim()).
		Str("dtype", scores.DType().String()).
		Msg("probability buffer reshaped")

	return nil
}

func checkLabelShape(scores, labels tensor.Shape) error {
	if len(labels) == 0 || labels.Num() != scores.Num() ||
		labels.NumElements() != scores.Num()*scores.SpatialDim() {
		return fmt.Errorf("%w: scores %v need %d labels per example, got labels %v",
			ErrLabelShape, scores, scores.SpatialDim(), labels)
	}
	return nil
}

// Forward computes the class-normalized loss of scores against labels.
func (l *SoftmaxClassNormalizedLoss) Forward(ctx context.Context, scores, labels *tensor.RawTensor) (loss float64, err error) {
	_, span := tracer.Start(ctx, "SoftmaxClassNormalizedLoss.Forward")
	defer span.End()

	start := time.Now()
	defer func() {
		observePass(passForward, start, err)
	}()

	if err := l.Setup(scores, labels); err != nil {
		return 0, failSpan(span, err)
	}
	l.forwarded = false
	if err := l.transform.Forward(scores, l.prob); err != nil {
		return 0, failSpan(span, err)
	}

	labelData, err := labelValues(labels)
	if err != nil {
		return 0, failSpan(span, err)
	}

	shape := scores.Shape()
	num, spatial := shape.Num(), shape.SpatialDim()

	counts, err := countBatch(labelData, num, spatial, l.cfg, l.parallel)
	if err != nil {
		return 0, failSpan(span, err)
	}

	switch l.prob.DType() {
	case tensor.Float32:
		loss = classNormalizedNLL(l.prob.AsFloat32(), labelData, counts, spatial, l.cfg, l.parallel)
	case tensor.Float64:
		loss = classNormalizedNLL(l.prob.AsFloat64(), labelData, counts, spatial, l.cfg, l.parallel)
	}

	l.forwarded = true
	lastLoss.Set(loss)
	observeCounts(counts, num*spatial)

	span.SetAttributes(
		attribute.Int("batch.num", num),
		attribute.Int("batch.spatial", spatial),
		attribute.Float64("loss", loss),
	)
	return loss, nil
}

// Probabilities returns a shared view of the probabilities computed by the
// last Forward, or nil before the first Forward.
//
// The view aliases the loss's own buffer and must not be written to. While
// the score shape and dtype stay the same, it reflects each later Forward.
// Once Setup reallocates the buffer for a new shape or dtype, the view keeps
// the old buffer and its last values. Release it when done.
func (l *SoftmaxClassNormalizedLoss) Probabilities() *tensor.RawTensor {
	if !l.forwarded {
		return nil
	}
	return l.prob.View()
}

// Backward writes the gradient of the loss with respect to the scores into
// scoresGrad, scaled by lossWeight (the incoming gradient of the loss).
//
// It uses the probabilities of the last Forward, and labels must be the
// labels that Forward saw. Labels are validated before anything is written,
// so scoresGrad is left untouched when Backward returns an error.
func (l *SoftmaxClassNormalizedLoss) Backward(
	ctx context.Context,
	lossWeight float64,
	down PropagateDown,
	labels, scoresGrad *tensor.RawTensor,
) (err error) {
	_, span := tracer.Start(ctx, "SoftmaxClassNormalizedLoss.Backward")
	defer span.End()

	start := time.Now()
	defer func() {
		observePass(passBackward, start, err)
	}()

	if down.Labels {
		return failSpan(span, ErrLabelGradient)
	}
	if scoresGrad.Shape().Channels() != l.cfg.NumClasses {
		return failSpan(span, fmt.Errorf("%w: gradient must have exactly %d channels, got %d",
			ErrChannelMismatch, l.cfg.NumClasses, scoresGrad.Shape().Channels()))
	}
	if !l.forwarded {
		return failSpan(span, ErrNoForward)
	}
	if !down.Scores {
		return nil
	}

	shape := l.prob.Shape()
	if !scoresGrad.Shape().Equal(shape) || scoresGrad.DType() != l.prob.DType() {
		return failSpan(span, fmt.Errorf("%w: want %v/%s, got %v/%s",
			ErrGradShape, shape, l.prob.DType(), scoresGrad.Shape(), scoresGrad.DType()))
	}
	if err := checkLabelShape(shape, labels.Shape()); err != nil {
		return failSpan(span, err)
	}

	labelData, err := labelValues(labels)
	if err != nil {
		return failSpan(span, err)
	}

	num, spatial := shape.Num(), shape.SpatialDim()
	counts, err := countBatch(labelData, num, spatial, l.cfg, l.parallel)
	if err != nil {
		return failSpan(span, err)
	}
	scale := lossWeight / float64(num)

	switch l.prob.DType() {
	case tensor.Float32:
		grad := scoresGrad.AsFloat32()
		classNormalizedGrad(l.prob.AsFloat32(), labelData, grad, counts, spatial, l.cfg, l.parallel)
		blas32.Scal(float32(scale), blas32.Vector{N: len(grad), Inc: 1, Data: grad})
	case tensor.Float64:
		grad := scoresGrad.AsFloat64()
		classNormalizedGrad(l.prob.AsFloat64(), labelData, grad, counts, spatial, l.cfg, l.parallel)
		blas64.Scal(scale, blas64.Vector{N: len(grad), Inc: 1, Data: grad})
	}

	span.SetAttributes(
		attribute.Int("batch.num", num),
		attribute.Int("batch.spatial", spatial),
		attribute.Float64("loss_weight", lossWeight),
	)
	return nil
}

// countBatch counts the classes of every example. The first example with
// an out-of-range label fails the whole batch.
func countBatch(labels []int32, num, spatial int, cfg LossConfig, par parallel.Config) ([]ClassCounts, error) {
	counts := make([]ClassCounts, num)
	err := parallel.ForErr(num, spatial, func(i int) error {
		c, err := CountClasses(labels[i*spatial:(i+1)*spatial], cfg)
		if err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		counts[i] = c
		return nil
	}, par)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// classNormalizedNLL returns the batch loss for labels already validated by
// countBatch.
func classNormalizedNLL[T tensor.Float](
	prob []T,
	labels []int32,
	counts []ClassCounts,
	spatial int,
	cfg LossConfig,
	par parallel.Config,
) float64 {
	num := len(counts)
	dim := cfg.NumClasses * spatial
	perExample := make([]float64, num)

	parallel.ForWeighted(num, dim, func(i int) {
		exLabels := labels[i*spatial : (i+1)*spatial]
		exProb := prob[i*dim : (i+1)*dim]
		var sum float64
		for j, v := range exLabels {
			if cfg.ignores(v) {
				continue
			}
			p := max(float64(exProb[int(v)*spatial+j]), probFloor)
			sum -= math.Log(p) / float64(counts[i].of(v))
		}
		perExample[i] = sum / float64(num)
	}, par)

	return floats.Sum(perExample)
}

// classNormalizedGrad writes the unscaled gradient of every example into grad.
func classNormalizedGrad[T tensor.Float](
	prob []T,
	labels []int32,
	grad []T,
	counts []ClassCounts,
	spatial int,
	cfg LossConfig,
	par parallel.Config,
) {
	channels := cfg.NumClasses
	dim := channels * spatial

	parallel.ForWeighted(len(counts), dim, func(i int) {
		exLabels := labels[i*spatial : (i+1)*spatial]
		exProb := prob[i*dim : (i+1)*dim]
		exGrad := grad[i*dim : (i+1)*dim]
		for j, v := range exLabels {
			if cfg.ignores(v) {
				for c := 0; c < channels; c++ {
					exGrad[c*spatial+j] = 0
				}
				continue
			}

			n := T(counts[i].of(v))
			for c := 0; c < channels; c++ {
				idx := c*spatial + j
				g := exProb[idx]
				if c == int(v) {
					g--
				}
				exGrad[idx] = g / n
			}
		}
	}, par)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
