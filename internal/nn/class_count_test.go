package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/classnorm/internal/tensor"
)

func TestCountClasses(t *testing.T) {
	cfg := DefaultLossConfig().WithIgnoreLabel(255)
	labels := []int32{0, 0, 1, 255, 1, 1, 255, 0}

	counts, err := CountClasses(labels, cfg)
	require.NoError(t, err)

	assert.Equal(t, ClassCounts{3, 3}, counts)
	assert.Equal(t, 6, counts.Total(), "total must equal the number of non-ignored positions")
}

func TestCountClasses_IgnoreLabelInsideClassRange(t *testing.T) {
	cfg := DefaultLossConfig().WithIgnoreLabel(0)

	counts, err := CountClasses([]int32{0, 0, 0, 1}, cfg)
	require.NoError(t, err)

	assert.Equal(t, ClassCounts{0, 1}, counts)
}

func TestCountClasses_AllIgnored(t *testing.T) {
	cfg := DefaultLossConfig().WithIgnoreLabel(-1)

	counts, err := CountClasses([]int32{-1, -1, -1}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, counts.Total())
}

func TestCountClasses_OutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		cfg    LossConfig
		labels []int32
	}{
		{"above num_classes", DefaultLossConfig(), []int32{0, 2}},
		{"negative", DefaultLossConfig(), []int32{-1, 0}},
		{"ignore label unset", DefaultLossConfig(), []int32{255}},
		{"different ignore label", DefaultLossConfig().WithIgnoreLabel(254), []int32{255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CountClasses(tt.labels, tt.cfg)
			assert.ErrorIs(t, err, ErrLabelOutOfRange)
		})
	}
}

func TestCountClasses_MoreThanTwoClasses(t *testing.T) {
	cfg := DefaultLossConfig()
	cfg.NumClasses = 4

	counts, err := CountClasses([]int32{3, 3, 0, 2, 3}, cfg)
	require.NoError(t, err)

	assert.Equal(t, ClassCounts{1, 0, 1, 3}, counts)
}

func TestClassCounts_ZeroCountPanics(t *testing.T) {
	counts := ClassCounts{0, 4}

	assert.Panics(t, func() { counts.of(0) })
	assert.Equal(t, 4, counts.of(1))
}

func TestLabelValues(t *testing.T) {
	ints, err := tensor.FromSlice([]int32{1, 0}, tensor.Shape{1, 1, 1, 2})
	require.NoError(t, err)
	got, err := labelValues(ints)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0}, got)

	floatLabels, err := tensor.FromSlice([]float32{1, 0, 255}, tensor.Shape{1, 3})
	require.NoError(t, err)
	got, err = labelValues(floatLabels)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0, 255}, got)
}
