package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreEmpty(t *testing.T) {
	assert := assert.New(t)

	s := NewMemoryStore()
	_, err := s.Load(context.Background())
	assert.True(errors.Is(err, domain.ErrSnapshotNotFound))
}

func TestMemoryStoreIsolation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := NewMemoryStore()
	counter := 9999.0
	snapshot := domain.TrackerSnapshot{
		State: domain.TrackerState{
			TotalDischargeCounter: 1500,
			IsCharging:            true,
			Batteries: []domain.BatteryState{
				{Number: 1, StoredEnergyKWh: 3.2, CapacityKWh: 5.12, LastDischargeCounter: &counter},
			},
		},
		SavedAt: time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(s.Save(context.Background(), snapshot))

	// later changes to the caller's state are not visible in the store
	snapshot.State.Batteries[0].StoredEnergyKWh = 0

	loaded, err := s.Load(context.Background())
	require.NoError(err)
	assert.Equal(1500.0, loaded.State.TotalDischargeCounter)
	assert.True(loaded.State.IsCharging)
	assert.Equal(3.2, loaded.State.Batteries[0].StoredEnergyKWh)
	require.NotNil(loaded.State.Batteries[0].LastDischargeCounter)
	assert.Equal(9999.0, *loaded.State.Batteries[0].LastDischargeCounter)
	assert.True(snapshot.SavedAt.Equal(loaded.SavedAt))
}
