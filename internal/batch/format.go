package batch

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/born-ml/classnorm/internal/tensor"
)

// FormatVersion is written into every file.
const FormatVersion = 1

// Common errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported batch format version")
	ErrShapeMismatch      = errors.New("batch data does not match its shape")
)

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Batch is one set of loss inputs.
type Batch struct {
	Version     int       `cbor:"version"`
	DType       string    `cbor:"dtype"`
	Shape       []int     `cbor:"shape"`
	Scores      []float64 `cbor:"scores"`
	Labels      []int32   `cbor:"labels"`
	IgnoreLabel *int      `cbor:"ignore_label,omitempty"`
}

// FromTensors copies scores and labels into a Batch.
func FromTensors(scores, labels *tensor.RawTensor) (*Batch, error) {
	if labels.DType() != tensor.Int32 {
		return nil, fmt.Errorf("labels must be int32, got %s", labels.DType())
	}
	b := &Batch{
		Version: FormatVersion,
		DType:   scores.DType().String(),
		Shape:   scores.Shape().Clone(),
		Scores:  scores.Float64s(),
		Labels:  append([]int32(nil), labels.AsInt32()...),
	}
	return b, b.Validate()
}

// Validate checks the version, dtype and that the arrays fit the shape.
func (b *Batch) Validate() error {
	if b.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, b.Version)
	}
	dt, err := tensor.ParseDataType(b.DType)
	if err != nil {
		return err
	}
	if !dt.IsFloat() {
		return fmt.Errorf("scores must be a float type, got %s", dt)
	}

	shape := tensor.Shape(b.Shape)
	if len(shape) < 2 {
		return fmt.Errorf("%w: scores shape %v must be [N, C, ...]", ErrShapeMismatch, shape)
	}
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	if len(b.Scores) != shape.NumElements() {
		return fmt.Errorf("%w: %d scores for shape %v", ErrShapeMismatch, len(b.Scores), shape)
	}
	if want := shape.Num() * shape.SpatialDim(); len(b.Labels) != want {
		return fmt.Errorf("%w: %d labels, want %d", ErrShapeMismatch, len(b.Labels), want)
	}
	return nil
}

// LabelShape returns [N, 1, spatial...] for the batch's score shape.
func (b *Batch) LabelShape() tensor.Shape {
	shape := tensor.Shape(b.Shape).Clone()
	shape[1] = 1
	return shape
}

// Tensors builds fresh score and label tensors from the batch.
func (b *Batch) Tensors() (scores, labels *tensor.RawTensor, err error) {
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	dt, _ := tensor.ParseDataType(b.DType)

	scores, err = tensor.NewRaw(tensor.Shape(b.Shape), dt)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range b.Scores {
		scores.SetFloat64(i, v)
	}

	labels, err = tensor.FromSlice(b.Labels, b.LabelShape())
	if err != nil {
		return nil, nil, err
	}
	return scores, labels, nil
}

// Gradient is the result of one forward and backward pass.
type Gradient struct {
	Version    int       `cbor:"version"`
	DType      string    `cbor:"dtype"`
	Shape      []int     `cbor:"shape"`
	Loss       float64   `cbor:"loss"`
	LossWeight float64   `cbor:"loss_weight"`
	Grad       []float64 `cbor:"grad"`
}

// NewGradient copies grad into a Gradient record.
func NewGradient(loss, lossWeight float64, grad *tensor.RawTensor) *Gradient {
	return &Gradient{
		Version:    FormatVersion,
		DType:      grad.DType().String(),
		Shape:      grad.Shape().Clone(),
		Loss:       loss,
		LossWeight: lossWeight,
		Grad:       grad.Float64s(),
	}
}

// Encode writes v as deterministic CBOR.
func Encode(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

// Decode reads one CBOR item into v.
func Decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}

// ReadBatch decodes and validates a batch.
func ReadBatch(r io.Reader) (*Batch, error) {
	var b Batch
	if err := Decode(r, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// ReadFile reads a batch file.
func ReadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBatch(f)
}

// WriteFile encodes v into path, replacing any existing file.
func WriteFile(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, v)
}
