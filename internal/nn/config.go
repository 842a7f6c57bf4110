package nn

import "fmt"

// DefaultNumClasses is the class count the loss was built for: a
// foreground/background split.
const DefaultNumClasses = 2

// LossConfig holds the loss parameters of a class-normalized loss.
type LossConfig struct {
	// NumClasses is the required channel count of the score tensor.
	NumClasses int

	// IgnoreLabel marks positions excluded from counting, loss and
	// gradient. Only used when HasIgnoreLabel is set.
	IgnoreLabel    int
	HasIgnoreLabel bool

	// Normalize must be true: the loss only exists in its class-normalized form.
	Normalize bool
}

// DefaultLossConfig returns a two-class, normalized configuration with no ignore label.
func DefaultLossConfig() LossConfig {
	return LossConfig{
		NumClasses: DefaultNumClasses,
		Normalize:  true,
	}
}

// WithIgnoreLabel returns a copy of c that ignores positions labeled label.
func (c LossConfig) WithIgnoreLabel(label int) LossConfig {
	c.IgnoreLabel = label
	c.HasIgnoreLabel = true
	return c
}

// Validate checks the configuration.
func (c LossConfig) Validate() error {
	if !c.Normalize {
		return ErrUnnormalized
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("%w: num_classes must be >= 2, got %d", ErrInvalidConfig, c.NumClasses)
	}
	return nil
}

// ignores reports whether a position carrying label is excluded.
func (c LossConfig) ignores(label int32) bool {
	return c.HasIgnoreLabel && int(label) == c.IgnoreLabel
}
