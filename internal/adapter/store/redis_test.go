package store

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	server := miniredis.RunT(t)
	client, err := NewRedisClient(config.RedisConfig{Addr: server.Addr()})
	require.NoError(t, err)
	s := NewRedisStore(client, "battracker")
	t.Cleanup(func() { s.Close() })
	return s, server
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s, server := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(err, domain.ErrSnapshotNotFound)

	snapshot := domain.TrackerSnapshot{
		State: domain.TrackerState{
			TotalDischargeCounter: 1500,
			TotalChargeCounter:    900,
			Batteries: []domain.BatteryState{
				{Number: 1, StoredEnergyKWh: 3.2, CapacityKWh: 5.12},
			},
		},
		SavedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(s.Save(ctx, snapshot))
	assert.True(server.Exists("battracker"))

	loaded, err := s.Load(ctx)
	require.NoError(err)
	assert.Equal(1500.0, loaded.State.TotalDischargeCounter)
	assert.Equal(900.0, loaded.State.TotalChargeCounter)
	assert.Equal(3.2, loaded.State.Batteries[0].StoredEnergyKWh)
	assert.True(snapshot.SavedAt.Equal(loaded.SavedAt))

	// a later save replaces the previous one
	snapshot.State.TotalChargeCounter = 1000
	require.NoError(s.Save(ctx, snapshot))
	loaded, err = s.Load(ctx)
	require.NoError(err)
	assert.Equal(1000.0, loaded.State.TotalChargeCounter)
}

func TestRedisStoreCorruptValue(t *testing.T) {
	assert := assert.New(t)

	s, server := newTestRedisStore(t)
	assert.NoError(server.Set("battracker", "not json"))

	_, err := s.Load(context.Background())
	assert.Error(err)
	assert.NotErrorIs(err, domain.ErrSnapshotNotFound)
}

func TestRedisClientRequiresAddr(t *testing.T) {
	_, err := NewRedisClient(config.RedisConfig{})
	assert.Error(t, err)
}
