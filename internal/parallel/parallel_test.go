package parallel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForWeighted_VisitsEachIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 10}

	visits := make([]int32, 17)
	ForWeighted(len(visits), 4, func(i int) {
		atomic.AddInt32(&visits[i], 1)
	}, cfg)

	for i, v := range visits {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 2}

	batch, positions := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, positions)
	}

	ForBatch(batch, positions, 3, func(b, j int) {
		results[b][j] = true
	}, cfg)

	for b := 0; b < batch; b++ {
		for j := 0; j < positions; j++ {
			assert.True(t, results[b][j], "missing result at [%d][%d]", b, j)
		}
	}
}

func TestForBatch_Sequential(t *testing.T) {
	var order [][2]int
	ForBatch(2, 3, 1, func(b, j int) {
		order = append(order, [2]int{b, j})
	}, Sequential())

	assert.Equal(t, [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, order)
}

func TestForErr_ReturnsLowestIndexError(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	errBad := errors.New("bad")

	err := ForErr(20, 1, func(i int) error {
		if i == 7 || i == 15 {
			return fmt.Errorf("item %d: %w", i, errBad)
		}
		return nil
	}, cfg)

	assert.ErrorIs(t, err, errBad)
	assert.EqualError(t, err, "item 7: bad")

	assert.NoError(t, ForErr(3, 1, func(int) error { return nil }, cfg))
}

func BenchmarkForWeighted(b *testing.B) {
	cfg := DefaultConfig()
	n := 64

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			ForWeighted(n, 1024, func(j int) {
				atomic.AddInt64(&sum, int64(j))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			ForWeighted(n, 1024, func(j int) {
				atomic.AddInt64(&sum, int64(j))
			}, Sequential())
		}
	})
}
