package statestream

import (
	"context"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/port"
	cmap "github.com/orcaman/concurrent-map"
)

type entry struct {
	state     string
	updatedAt time.Time
}

// Cache holds the last state of every entity received from the Home
// Assistant statestream. Writes come from the MQTT callback goroutine.
type Cache struct {
	states cmap.ConcurrentMap
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates a cache. States older than maxAge are reported as missing;
// a zero maxAge keeps them forever.
func NewCache(maxAge time.Duration) *Cache {
	return &Cache{
		states: cmap.New(),
		maxAge: maxAge,
		now:    time.Now,
	}
}

func (c *Cache) Put(entityId, state string) {
	c.states.Set(entityId, entry{state: state, updatedAt: c.now()})
}

func (c *Cache) Get(entityId string) (string, bool) {
	value, ok := c.states.Get(entityId)
	if !ok {
		return "", false
	}
	e := value.(entry)
	if c.maxAge > 0 && c.now().Sub(e.updatedAt) > c.maxAge {
		return "", false
	}
	return e.state, true
}

func (c *Cache) Len() int {
	return c.states.Count()
}

func (c *Cache) Open() error {
	return nil
}

func (c *Cache) Close() error {
	return nil
}

func (c *Cache) Read(ctx context.Context, entityIds []string) (map[string]string, error) {
	states := make(map[string]string, len(entityIds))
	for _, id := range entityIds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if state, ok := c.Get(id); ok {
			states[id] = state
		}
	}
	return states, nil
}

// ensure interface compliance
var _ port.SensorReader = (*Cache)(nil)
