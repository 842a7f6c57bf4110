package nn

import "errors"

// Configuration and usage errors returned by the class-normalized loss.
//
// They mark caller misuse rather than data conditions: a harness should
// stop the run when it sees one instead of retrying.
var (
	ErrInvalidConfig    = errors.New("invalid loss configuration")
	ErrUnnormalized     = errors.New("class-normalized loss cannot have normalization set to false")
	ErrChannelMismatch  = errors.New("score channel count does not match the number of classes")
	ErrLabelShape       = errors.New("label shape does not match scores")
	ErrLabelOutOfRange  = errors.New("label outside [0, num_classes)")
	ErrLabelGradient    = errors.New("cannot backpropagate to label inputs")
	ErrNoForward        = errors.New("backward called before forward")
	ErrGradShape        = errors.New("gradient buffer does not match scores")
	ErrUnsupportedDType = errors.New("unsupported data type")
)
