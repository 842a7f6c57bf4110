package nn

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/classnorm/internal/tensor"
)

func TestMetrics_ForwardBackward(t *testing.T) {
	ctx := context.Background()
	l := newTestLoss(t, DefaultLossConfig().WithIgnoreLabel(255))
	scores := twoClassScores(t, [][]float64{{0.9, 0.2, 0.5, 0.5}})
	labels := labelTensor(t, [][]int32{{0, 1, 1, 255}})

	forwards := testutil.ToFloat64(lossPasses.WithLabelValues(passForward))
	backwards := testutil.ToFloat64(lossPasses.WithLabelValues(passBackward))
	ignored := testutil.ToFloat64(ignoredPositions)
	class1 := testutil.ToFloat64(classPositions.WithLabelValues("1"))

	loss, err := l.Forward(ctx, scores, labels)
	require.NoError(t, err)
	require.NoError(t, l.Backward(ctx, 1, PropagateDown{Scores: true}, labels, newGradLike(t, scores)))

	assert.InDelta(t, forwards+1, testutil.ToFloat64(lossPasses.WithLabelValues(passForward)), 0)
	assert.InDelta(t, backwards+1, testutil.ToFloat64(lossPasses.WithLabelValues(passBackward)), 0)
	assert.InDelta(t, ignored+1, testutil.ToFloat64(ignoredPositions), 0)
	assert.InDelta(t, class1+2, testutil.ToFloat64(classPositions.WithLabelValues("1")), 0)
	assert.InDelta(t, loss, testutil.ToFloat64(lastLoss), 0)
}

func TestMetrics_Errors(t *testing.T) {
	l := newTestLoss(t, DefaultLossConfig())
	failures := testutil.ToFloat64(lossPassErrors.WithLabelValues(passBackward))

	scores := twoClassScores(t, [][]float64{{0.5}})
	err := l.Backward(context.Background(), 1, PropagateDown{Scores: true}, labelTensor(t, [][]int32{{0}}), newGradLike(t, scores))
	require.ErrorIs(t, err, ErrNoForward)

	assert.InDelta(t, failures+1, testutil.ToFloat64(lossPassErrors.WithLabelValues(passBackward)), 0)
}

func newGradLike(t *testing.T, scores *tensor.RawTensor) *tensor.RawTensor {
	t.Helper()
	grad, err := tensor.NewRaw(scores.Shape(), scores.DType())
	require.NoError(t, err)
	return grad
}
