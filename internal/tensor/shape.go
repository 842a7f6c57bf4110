package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Shape represents the dimensions of a tensor.
//
// Loss inputs use the channel-first layout [N, C, ...]: axis 0 is the
// example, axis 1 the class channel, and every remaining axis is spatial.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// Num returns the number of examples (axis 0), or 1 for a scalar.
func (s Shape) Num() int {
	if len(s) == 0 {
		return 1
	}
	return s[0]
}

// Channels returns the size of axis 1, or 1 when the shape has rank < 2.
func (s Shape) Channels() int {
	if len(s) < 2 {
		return 1
	}
	return s[1]
}

// SpatialDim returns the product of all axes after the channel axis.
// A [N, C] shape has a spatial extent of 1, like an H = W = 1 image.
func (s Shape) SpatialDim() int {
	n := 1
	for i := 2; i < len(s); i++ {
		n *= s[i]
	}
	return n
}

// String formats the shape as "[2 2 4 4]".
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		parts[i] = strconv.Itoa(dim)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
