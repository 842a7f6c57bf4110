// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the softmax class-normalized loss.
//
// # Overview
//
// SoftmaxClassNormalizedLoss turns per-position class scores into
// probabilities with a channel-wise softmax and scores each position by its
// negative log-likelihood, divided by how often its label occurs in the same
// example. Every class present in an example therefore contributes the same
// total weight, no matter how many positions it covers.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/classnorm/nn"
//	    "github.com/born-ml/classnorm/tensor"
//	)
//
//	func main() {
//	    loss, err := nn.NewSoftmaxClassNormalizedLoss(nn.DefaultLossConfig().WithIgnoreLabel(255))
//	    if err != nil {
//	        // handle
//	    }
//
//	    value, err := loss.Forward(ctx, scores, labels)
//	    grad, _ := tensor.NewRaw(scores.Shape(), scores.DType())
//	    err = loss.Backward(ctx, 1, nn.PropagateDown{Scores: true}, labels, grad)
//	}
//
// # Shapes
//
// Scores are [N, C, spatial...] with C equal to LossConfig.NumClasses.
// Labels hold N * spatial values; a label equal to the ignore label
// contributes neither loss nor gradient and is not counted.
//
// # Errors
//
// Shape and configuration problems are reported as wrapped sentinel errors
// (ErrChannelMismatch, ErrLabelShape, ...) and should be treated as fatal.
// Use errors.Is to tell them apart.
package nn
