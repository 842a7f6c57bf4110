package nn

import (
	"fmt"

	"github.com/born-ml/classnorm/internal/tensor"
)

// ClassCounts maps a class id to the number of positions of one example
// that carry that label.
type ClassCounts []int

// Total returns the number of counted (non-ignored) positions.
func (c ClassCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// of returns the count of label, which must have been seen by the counter.
func (c ClassCounts) of(label int32) int {
	n := c[label]
	if n <= 0 {
		panic(fmt.Sprintf("SoftmaxClassNormalizedLoss: label %d present with count %d", label, n))
	}
	return n
}

// CountClasses counts, for one example, how many positions carry each class.
//
// Ignored positions are never counted, even when the ignore label lies
// inside [0, NumClasses). A non-ignored label outside that range is an error.
func CountClasses(labels []int32, cfg LossConfig) (ClassCounts, error) {
	counts := make(ClassCounts, cfg.NumClasses)
	for j, v := range labels {
		if cfg.ignores(v) {
			continue
		}
		if v < 0 || int(v) >= cfg.NumClasses {
			return nil, fmt.Errorf("%w: label %d at position %d (num_classes %d)",
				ErrLabelOutOfRange, v, j, cfg.NumClasses)
		}
		counts[v]++
	}
	return counts, nil
}

// labelValues returns the labels as int32.
//
// Int32 tensors are returned without copying. Float tensors are truncated
// toward zero, since some pipelines store integer labels as floats.
func labelValues(labels *tensor.RawTensor) ([]int32, error) {
	switch labels.DType() {
	case tensor.Int32:
		return labels.AsInt32(), nil
	case tensor.Float32:
		return truncateLabels(labels.AsFloat32()), nil
	case tensor.Float64:
		return truncateLabels(labels.AsFloat64()), nil
	default:
		return nil, fmt.Errorf("%w: labels of type %s", ErrUnsupportedDType, labels.DType())
	}
}

func truncateLabels[T tensor.Float](data []T) []int32 {
	out := make([]int32, len(data))
	for i, v := range data {
		out[i] = int32(v)
	}
	return out
}
