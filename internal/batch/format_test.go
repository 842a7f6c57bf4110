package batch

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/classnorm/internal/tensor"
)

func TestBatch_FileRoundTrip(t *testing.T) {
	cfg := DefaultGenerateConfig()
	cfg.Height, cfg.Width = 3, 5
	b, err := Generate(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "batch.cbor")
	require.NoError(t, WriteFile(path, b))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	scores, labels, err := got.Tensors()
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, scores.DType())
	assert.Equal(t, tensor.Shape{2, 2, 3, 5}, scores.Shape())
	assert.Equal(t, tensor.Shape{2, 1, 3, 5}, labels.Shape())
	assert.Equal(t, b.Labels, labels.AsInt32())
}

func TestFromTensors(t *testing.T) {
	scores, err := tensor.FromSlice([]float64{0.5, -0.5, 1, 2}, tensor.Shape{1, 2, 1, 2})
	require.NoError(t, err)
	labels, err := tensor.FromSlice([]int32{0, 1}, tensor.Shape{1, 1, 1, 2})
	require.NoError(t, err)

	b, err := FromTensors(scores, labels)
	require.NoError(t, err)
	assert.Equal(t, "float64", b.DType)
	assert.Nil(t, b.IgnoreLabel)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, b))
	got, err := ReadBatch(&buf)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5, 1, 2}, got.Scores)
}

func TestBatch_Validate(t *testing.T) {
	valid := func() *Batch {
		return &Batch{
			Version: FormatVersion,
			DType:   "float32",
			Shape:   []int{1, 2, 1, 2},
			Scores:  []float64{0, 0, 0, 0},
			Labels:  []int32{0, 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(b *Batch)
		target error
	}{
		{"version", func(b *Batch) { b.Version = 9 }, ErrUnsupportedVersion},
		{"scores length", func(b *Batch) { b.Scores = b.Scores[:3] }, ErrShapeMismatch},
		{"labels length", func(b *Batch) { b.Labels = append(b.Labels, 0) }, ErrShapeMismatch},
		{"rank", func(b *Batch) { b.Shape = []int{4}; b.Labels = []int32{0, 0, 0, 0} }, ErrShapeMismatch},
		{"int scores", func(b *Batch) { b.DType = "int32" }, nil},
		{"unknown dtype", func(b *Batch) { b.DType = "float16" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			err := b.Validate()
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestGradient_Encode(t *testing.T) {
	grad, err := tensor.FromSlice([]float32{0.25, -0.25}, tensor.Shape{1, 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, NewGradient(0.69, 1, grad)))

	var got Gradient
	require.NoError(t, Decode(&buf, &got))
	assert.Equal(t, []float64{0.25, -0.25}, got.Grad)
	assert.Equal(t, "float32", got.DType)
	assert.InDelta(t, 0.69, got.Loss, 1e-12)
}

func TestGenerate(t *testing.T) {
	cfg := DefaultGenerateConfig()
	cfg.Height, cfg.Width = 16, 16
	cfg.IgnoreFraction = 0.2
	cfg.ForegroundFraction = 0.3

	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed, same batch")

	var ignored, fg int
	for _, v := range a.Labels {
		switch v {
		case 255:
			ignored++
		case 1:
			fg++
		default:
			assert.Equal(t, int32(0), v)
		}
	}
	assert.Positive(t, ignored)
	assert.Positive(t, fg)
	require.NotNil(t, a.IgnoreLabel)
	assert.Equal(t, 255, *a.IgnoreLabel)

	cfg.Classes = 1
	_, err = Generate(cfg)
	assert.Error(t, err)
}
