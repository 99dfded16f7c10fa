package statestream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheRead(t *testing.T) {
	assert := assert.New(t)

	c := NewCache(0)
	c.Put("sensor.a", "10")
	c.Put("sensor.b", "unavailable")
	c.Put("sensor.a", "12")

	states, err := c.Read(context.Background(), []string{"sensor.a", "sensor.b", "sensor.c"})
	assert.NoError(err)
	assert.Equal(map[string]string{"sensor.a": "12", "sensor.b": "unavailable"}, states)
	assert.Equal(2, c.Len())
}

func TestCacheMaxAge(t *testing.T) {
	assert := assert.New(t)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(5 * time.Minute)
	c.now = func() time.Time { return now }
	c.Put("sensor.a", "1")

	now = now.Add(4 * time.Minute)
	_, ok := c.Get("sensor.a")
	assert.True(ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("sensor.a")
	assert.False(ok, "stale state")
}

func TestCacheConcurrentWrites(t *testing.T) {
	assert := assert.New(t)

	c := NewCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put("sensor.shared", "1")
			}
		}()
	}
	wg.Wait()

	state, ok := c.Get("sensor.shared")
	assert.True(ok)
	assert.Equal("1", state)
}

func TestCacheReadCancelled(t *testing.T) {
	assert := assert.New(t)

	c := NewCache(0)
	c.Put("sensor.a", "1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Read(ctx, []string{"sensor.a"})
	assert.ErrorIs(err, context.Canceled)
}
