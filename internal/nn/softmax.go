package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/classnorm/internal/parallel"
	"github.com/born-ml/classnorm/internal/tensor"
)

// ProbabilityTransform maps raw class scores to a probability distribution
// over the channel axis. prob has the shape and dtype of scores.
type ProbabilityTransform interface {
	Forward(scores, prob *tensor.RawTensor) error
}

// ChannelSoftmax is a softmax over axis 1 of a [N, C, ...] tensor, applied
// independently at every (example, position).
//
// Forward (for each position):
//
//	softmax(x)_c = exp(x_c - max(x)) / Σ_k exp(x_k - max(x))
//
// The max-shifting keeps exp from overflowing.
type ChannelSoftmax struct {
	parallel parallel.Config
}

// NewChannelSoftmax creates a channel softmax that splits the
// (example, position) pairs of a batch across goroutines according to cfg.
func NewChannelSoftmax(cfg parallel.Config) *ChannelSoftmax {
	return &ChannelSoftmax{parallel: cfg}
}

// Forward writes softmax(scores) into prob.
func (s *ChannelSoftmax) Forward(scores, prob *tensor.RawTensor) error {
	shape := scores.Shape()
	if len(shape) < 2 {
		return fmt.Errorf("ChannelSoftmax: scores must be [N, C, ...], got %v", shape)
	}
	if !prob.Shape().Equal(shape) || prob.DType() != scores.DType() {
		return fmt.Errorf("ChannelSoftmax: output %v/%s does not match input %v/%s",
			prob.Shape(), prob.DType(), shape, scores.DType())
	}

	num, channels, spatial := shape.Num(), shape.Channels(), shape.SpatialDim()

	switch scores.DType() {
	case tensor.Float32:
		channelSoftmax(scores.AsFloat32(), prob.AsFloat32(), num, channels, spatial, s.parallel)
	case tensor.Float64:
		channelSoftmax(scores.AsFloat64(), prob.AsFloat64(), num, channels, spatial, s.parallel)
	default:
		return fmt.Errorf("%w: ChannelSoftmax on %s", ErrUnsupportedDType, scores.DType())
	}
	return nil
}

func channelSoftmax[T tensor.Float](in, out []T, num, channels, spatial int, cfg parallel.Config) {
	dim := channels * spatial
	parallel.ForBatch(num, spatial, channels, func(i, j int) {
		base := i*dim + j
		maxVal := in[base]
		for c := 1; c < channels; c++ {
			maxVal = max(maxVal, in[base+c*spatial])
		}

		sumExp := T(0)
		for c := 0; c < channels; c++ {
			idx := base + c*spatial
			out[idx] = T(math.Exp(float64(in[idx] - maxVal)))
			sumExp += out[idx]
		}

		for c := 0; c < channels; c++ {
			out[base+c*spatial] /= sumExp
		}
	}, cfg)
}
