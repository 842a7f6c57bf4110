package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/classnorm/internal/batch"
)

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "version", nil, &out))
	assert.Equal(t, "classnorm "+version+"\n", out.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), "train", nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, `unknown command "train"`)
}

func TestRun_GenEval(t *testing.T) {
	dir := t.TempDir()
	batchPath := filepath.Join(dir, "batch.cbor")
	gradPath := filepath.Join(dir, "grad.cbor")
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, "gen", []string{"-out", batchPath, "-n", "3", "-seed", "7"}, &out))
	assert.Equal(t, batchPath+"\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, "eval", []string{"-batch", batchPath, "-grad-out", gradPath, "-loss-weight", "0.5"}, &out))
	assert.Contains(t, out.String(), "loss ")

	b, err := batch.ReadFile(batchPath)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 8, 8}, b.Shape)
}

func TestRun_EvalErrors(t *testing.T) {
	dir := t.TempDir()
	batchPath := filepath.Join(dir, "batch.cbor")
	ctx := context.Background()
	require.NoError(t, run(ctx, "gen", []string{"-out", batchPath, "-classes", "3"}, &bytes.Buffer{}))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing batch", nil, "-batch is required"},
		{"channel mismatch", []string{"-batch", batchPath}, "channels"},
		{"missing file", []string{"-batch", filepath.Join(dir, "nope.cbor")}, "nope.cbor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(ctx, "eval", tt.args, &bytes.Buffer{})
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRun_Check(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "check", []string{"-n", "2", "-seed", "3"}, &out))
	assert.Contains(t, out.String(), "checked 64 entries")
}

func TestWriteMetrics(t *testing.T) {
	dir := t.TempDir()
	batchPath := filepath.Join(dir, "batch.cbor")
	ctx := context.Background()
	require.NoError(t, run(ctx, "gen", []string{"-out", batchPath}, &bytes.Buffer{}))
	require.NoError(t, run(ctx, "eval", []string{"-batch", batchPath}, &bytes.Buffer{}))

	var out bytes.Buffer
	require.NoError(t, writeMetrics(&out))
	assert.Contains(t, out.String(), "classnorm_loss_passes_total")
	assert.NotContains(t, out.String(), "go_goroutines")
}
