// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/classnorm/internal/tensor"
)

// Float is a constraint for floating-point element types.
type Float = tensor.Float

// Element is a constraint for every supported element type.
type Element = tensor.Element

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
)

// ParseDataType parses "float32", "float64" or "int32".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Shape represents tensor dimensions, outermost first.
type Shape = tensor.Shape

// RawTensor is a reference-counted dense tensor buffer.
type RawTensor = tensor.RawTensor

// NewRaw allocates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T Element](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}
