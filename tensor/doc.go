// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types used by the classnorm loss.
//
// A RawTensor is a dense, row-major buffer with a Shape and a DataType.
// Scores are float32 or float64 tensors laid out as [N, C, spatial...];
// labels are int32 (or float, truncated) tensors with N * spatial elements.
//
// Example:
//
//	scores, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 2, 1, 2})
//	labels, _ := tensor.FromSlice([]int32{0, 1}, tensor.Shape{1, 1, 1, 2})
package tensor
