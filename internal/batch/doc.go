// Package batch reads and writes loss batches and gradients as CBOR files.
//
// A batch file holds one score tensor [N, C, H, W] (stored as float64
// together with the dtype it should be loaded as) and its labels
// [N, 1, H, W]. A gradient file holds the loss and the gradient with
// respect to the scores.
package batch
