package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/born-ml/classnorm/internal/batch"
	"github.com/born-ml/classnorm/internal/gradcheck"
	"github.com/born-ml/classnorm/internal/nn"
	"github.com/born-ml/classnorm/internal/tensor"
)

// generateFlags registers the batch-shape flags shared by gen and check.
func generateFlags(fs *flag.FlagSet, cfg *batch.GenerateConfig) *string {
	fs.IntVar(&cfg.Num, "n", cfg.Num, "Number of examples")
	fs.IntVar(&cfg.Classes, "classes", cfg.Classes, "Number of classes")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "Spatial height")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "Spatial width")
	fs.Float64Var(&cfg.ForegroundFraction, "fg-frac", cfg.ForegroundFraction, "Fraction of non-background positions")
	fs.Float64Var(&cfg.IgnoreFraction, "ignore-frac", cfg.IgnoreFraction, "Fraction of ignored positions")
	fs.IntVar(&cfg.IgnoreLabel, "ignore", cfg.IgnoreLabel, "Ignore label value")
	fs.Float64Var(&cfg.ScoreScale, "scale", cfg.ScoreScale, "Standard deviation of the scores")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	return fs.String("dtype", cfg.DType.String(), "Score dtype (float32, float64)")
}

func generate(cfg batch.GenerateConfig, dtype string) (*batch.Batch, error) {
	dt, err := tensor.ParseDataType(dtype)
	if err != nil {
		return nil, err
	}
	cfg.DType = dt
	return batch.Generate(cfg)
}

func runGen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	cfg := batch.DefaultGenerateConfig()
	dtype := generateFlags(fs, &cfg)
	path := fs.String("out", "batch.cbor", "Output batch file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := generate(cfg, *dtype)
	if err != nil {
		return err
	}
	if err := batch.WriteFile(*path, b); err != nil {
		return err
	}

	log.Info().Str("path", *path).Ints("shape", b.Shape).Str("dtype", b.DType).Msg("Batch written")
	fmt.Fprintln(out, *path)
	return nil
}

// lossConfig builds the loss configuration for a batch; an explicit
// -ignore flag wins over the batch's own ignore label.
func lossConfig(b *batch.Batch, classes int, ignore int, ignoreSet bool) nn.LossConfig {
	cfg := nn.DefaultLossConfig()
	cfg.NumClasses = classes
	switch {
	case ignoreSet:
		cfg = cfg.WithIgnoreLabel(ignore)
	case b.IgnoreLabel != nil:
		cfg = cfg.WithIgnoreLabel(*b.IgnoreLabel)
	}
	return cfg
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runEval(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	path := fs.String("batch", "", "Batch file to evaluate")
	classes := fs.Int("classes", nn.DefaultNumClasses, "Number of classes the loss expects")
	ignore := fs.Int("ignore", 0, "Ignore label (overrides the batch file)")
	lossWeight := fs.Float64("loss-weight", 1, "Loss weight passed to backward")
	gradOut := fs.String("grad-out", "", "Write the gradient to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("eval: -batch is required")
	}

	b, err := batch.ReadFile(*path)
	if err != nil {
		return err
	}
	scores, labels, err := b.Tensors()
	if err != nil {
		return err
	}

	loss, err := nn.NewSoftmaxClassNormalizedLoss(
		lossConfig(b, *classes, *ignore, flagWasSet(fs, "ignore")),
		nn.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}
	if err := loss.Setup(scores, labels); err != nil {
		return err
	}

	value, err := loss.Forward(ctx, scores, labels)
	if err != nil {
		return err
	}
	grad, err := tensor.NewRaw(scores.Shape(), scores.DType())
	if err != nil {
		return err
	}
	if err := loss.Backward(ctx, *lossWeight, nn.PropagateDown{Scores: true}, labels, grad); err != nil {
		return err
	}

	log.Info().
		Str("batch", *path).
		Float64("loss", value).
		Float64("loss_weight", *lossWeight).
		Msg("Batch evaluated")
	fmt.Fprintf(out, "loss %.6f\n", value)

	if *gradOut != "" {
		if err := batch.WriteFile(*gradOut, batch.NewGradient(value, *lossWeight, grad)); err != nil {
			return err
		}
		log.Info().Str("path", *gradOut).Msg("Gradient written")
	}
	return nil
}

func runCheck(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	cfg := batch.DefaultGenerateConfig()
	cfg.DType = tensor.Float64
	cfg.Height, cfg.Width = 4, 4
	cfg.ForegroundFraction = 0.3
	cfg.IgnoreFraction = 0.2
	dtype := generateFlags(fs, &cfg)
	tol := fs.Float64("tol", 0, "Maximum relative error (default depends on dtype)")
	step := fs.Float64("step", 0, "Finite-difference step (default depends on dtype)")
	lossWeight := fs.Float64("loss-weight", 1, "Loss weight passed to backward")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := generate(cfg, *dtype)
	if err != nil {
		return err
	}
	scores, labels, err := b.Tensors()
	if err != nil {
		return err
	}

	loss, err := nn.NewSoftmaxClassNormalizedLoss(
		lossConfig(b, cfg.Classes, cfg.IgnoreLabel, false),
		nn.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}

	settings := gradcheck.DefaultSettings()
	settings.Step = *step
	settings.LossWeight = *lossWeight
	if *tol > 0 {
		settings.Tolerance = *tol
	} else if scores.DType() == tensor.Float32 {
		settings.Tolerance = 5e-3
	}

	r, err := gradcheck.Check(ctx, loss, scores, labels, settings)
	if err != nil {
		return err
	}

	worst := r.Indices[r.Worst]
	log.Info().
		Int("entries", len(r.Indices)).
		Float64("max_error", r.MaxError).
		Int("worst_index", worst).
		Msg("Gradient checked")
	fmt.Fprintf(out, "checked %d entries, max error %.3g\n", len(r.Indices), r.MaxError)

	if !r.OK(settings.Tolerance) {
		return fmt.Errorf("gradient check failed: error %.3g at index %d (analytic %g, numeric %g), tolerance %g",
			r.MaxError, worst, r.Analytic[r.Worst], r.Numeric[r.Worst], settings.Tolerance)
	}
	return nil
}
