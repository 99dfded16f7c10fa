package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f64(v float64) *float64 {
	return &v
}

func TestProcessCounterFirstReadingIsBaseline(t *testing.T) {
	assert := assert.New(t)

	d := ProcessCounter(nil, 1234, 65535, 65000)
	assert.True(d.Baseline)
	assert.Zero(d.Delta)
	assert.False(d.Rollover)
}

func TestProcessCounterIncrement(t *testing.T) {
	assert := assert.New(t)

	d := ProcessCounter(f64(100), 150, 65535, 65000)
	assert.Equal(50.0, d.Delta)
	assert.False(d.Rollover)

	d = ProcessCounter(f64(150), 150, 65535, 65000)
	assert.Zero(d.Delta)
}

func TestProcessCounterRollover(t *testing.T) {
	assert := assert.New(t)

	d := ProcessCounter(f64(9999), 5, 10000, 9000)
	assert.True(d.Rollover)
	assert.False(d.Suspicious)
	assert.Equal(6.0, d.Delta)
}

func TestProcessCounterSuspiciousDrop(t *testing.T) {
	assert := assert.New(t)

	// a drop far below the rollover threshold still counts, but is flagged
	d := ProcessCounter(f64(500), 100, 65535, 65000)
	assert.True(d.Rollover)
	assert.True(d.Suspicious)
	assert.Equal(65135.0, d.Delta)
}

func TestProcessCounterNeverNegative(t *testing.T) {
	assert := assert.New(t)

	d := ProcessCounter(f64(70000), 10, 65535, 65000)
	assert.True(d.Rollover)
	assert.Equal(10.0, d.Delta)
	assert.GreaterOrEqual(d.Delta, 0.0)
}
