package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyRingStatsEmpty(t *testing.T) {
	r := newLatencyRing(4)
	stats := r.stats()
	assert.Equal(t, 0, stats.Count)
}

func TestLatencyRingAvgMinMax(t *testing.T) {
	r := newLatencyRing(4)
	r.record(10 * time.Millisecond)
	r.record(20 * time.Millisecond)
	r.record(30 * time.Millisecond)

	stats := r.stats()
	require.Equal(t, 3, stats.Count)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 30*time.Millisecond, stats.Max)
	assert.Equal(t, 20*time.Millisecond, stats.Avg)
}

func TestLatencyRingWrapsAtCapacity(t *testing.T) {
	r := newLatencyRing(2)
	r.record(1 * time.Millisecond)
	r.record(2 * time.Millisecond)
	r.record(3 * time.Millisecond)

	stats := r.stats()
	assert.Equal(t, 2, stats.Count, "capacity bounds the sample count even after more writes")
}

func TestLatencyRingClear(t *testing.T) {
	r := newLatencyRing(4)
	r.record(5 * time.Millisecond)
	r.clear()

	assert.Equal(t, 0, r.stats().Count)
}
