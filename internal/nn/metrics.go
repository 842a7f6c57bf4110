package nn

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	passForward  = "forward"
	passBackward = "backward"
)

var (
	lossPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classnorm_loss_passes_total",
		Help: "Total number of completed loss passes",
	}, []string{"pass"})

	lossPassErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classnorm_loss_pass_errors_total",
		Help: "Total number of loss passes rejected with an error",
	}, []string{"pass"})

	lossPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "classnorm_loss_pass_duration_seconds",
		Help:    "Time spent in a loss pass",
		Buckets: prometheus.DefBuckets,
	}, []string{"pass"})

	lastLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classnorm_loss_value",
		Help: "Loss computed by the most recent forward pass",
	})

	ignoredPositions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classnorm_ignored_positions_total",
		Help: "Total number of positions skipped because of the ignore label",
	})

	classPositions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classnorm_class_positions_total",
		Help: "Total number of labeled positions seen per class",
	}, []string{"class"})
)

func observePass(pass string, start time.Time, err error) {
	if err != nil {
		lossPassErrors.WithLabelValues(pass).Inc()
		return
	}
	lossPasses.WithLabelValues(pass).Inc()
	lossPassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

// observeCounts records the label mix of one forward pass.
func observeCounts(counts []ClassCounts, positions int) {
	if len(counts) == 0 {
		return
	}
	totals := make(ClassCounts, len(counts[0]))
	for _, c := range counts {
		for k, n := range c {
			totals[k] += n
		}
	}
	for k, n := range totals {
		classPositions.WithLabelValues(strconv.Itoa(k)).Add(float64(n))
	}
	ignoredPositions.Add(float64(positions - totals.Total()))
}
