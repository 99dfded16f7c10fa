package actor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	adactor "github.com/berfenger/battracker2mqtt/internal/adapter/actor"
	"github.com/berfenger/battracker2mqtt/internal/adapter/statestream"
	"github.com/berfenger/battracker2mqtt/internal/adapter/store"
	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/service"
	"github.com/berfenger/battracker2mqtt/internal/util"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func trackerTestConfig() config.Config {
	cfg := util.LoadTestConfig()
	cfg.Tracker.UpdateIntervalSeconds = 1
	cfg.Tracker.EntityRetryCount = 0
	cfg.Tracker.EntityPatterns = map[string]string{
		domain.ENTITY_KIND_DISCHARGE: "sensor.b{}_out",
		domain.ENTITY_KIND_CHARGE:    "sensor.b{}_in",
		domain.ENTITY_KIND_CURRENT:   "sensor.b{}_amps",
		domain.ENTITY_KIND_VOLTAGE:   "sensor.b{}_volts",
	}
	cfg.Storage.SnapshotIntervalSeconds = 0
	return cfg
}

func TestTrackerActorFlow(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	cfg := trackerTestConfig()

	cache := statestream.NewCache(0)
	cache.Put("sensor.b1_out", "100")
	cache.Put("sensor.b1_in", "50")

	snapshots := store.NewMemoryStore()
	require.NoError(snapshots.Save(context.Background(), domain.TrackerSnapshot{
		State: domain.TrackerState{
			TotalChargeCounter: 2000,
		},
		SavedAt: time.Now(),
	}))

	sensorsPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewSensorsActor(cache, time.Second, logger)
	}))
	snapshotPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewSnapshotActor(snapshots, logger)
	}))
	mqttPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewTestMQTTActor(&cfg, logger)
	}))
	trackerPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTrackerActor(&cfg, service.NewEnergyTracker(cfg.Tracker, logger), sensorsPID, snapshotPID, mqttPID, logger)
	}))

	// first tick records the baselines, the second one sees the increase
	time.Sleep(300 * time.Millisecond)
	cache.Put("sensor.b1_out", "130")
	time.Sleep(1300 * time.Millisecond)

	res, err := root.RequestFuture(trackerPID, domain.GetTrackerStateRequest{}, 2*time.Second).Result()
	require.NoError(err)
	summary := res.(domain.GetTrackerStateResponse).Summary
	assert.InDelta(0.03, summary.TotalDischargeKWh, 1e-9)
	assert.InDelta(0.03, summary.EnergySinceLastChargeKWh, 1e-9)
	assert.InDelta(2.0, summary.TotalChargeKWh, 1e-9, "restored from snapshot")
	assert.Equal(domain.CHARGE_STATUS_DISCHARGING, summary.ChargeStatus)

	hcr, err := healthCheck(root, trackerPID)
	require.NoError(err)
	assert.True(hcr.Healthy)

	// services
	res, err = root.RequestFuture(trackerPID, domain.SetBatteryToFullRequest{}, 2*time.Second).Result()
	require.NoError(err)
	resp := res.(domain.ServiceResponse)
	assert.False(resp.HasResponseError())
	assert.Equal(domain.SERVICE_SET_BATTERY_TO_FULL, resp.Service)
	assert.InDelta(100.0, resp.Summary.StoredEnergyPercent, 1e-9)

	res, err = root.RequestFuture(trackerPID, domain.SetBatteryCapacityRequest{BatteryNum: 5, CapacityKWh: 1}, 2*time.Second).Result()
	require.NoError(err)
	resp = res.(domain.ServiceResponse)
	assert.True(resp.HasResponseError())
	assert.True(domain.IsValidationError(resp.GetResponseError()))

	res, err = root.RequestFuture(trackerPID, domain.ResetEnergySinceChargeRequest{}, 2*time.Second).Result()
	require.NoError(err)
	assert.Equal(0.0, res.(domain.ServiceResponse).Summary.EnergySinceLastChargeKWh)

	// diagnostics
	res, err = root.RequestFuture(trackerPID, domain.GetDiagnosticsRequest{}, 2*time.Second).Result()
	require.NoError(err)
	d := res.(domain.GetDiagnosticsResponse).Diagnostics
	assert.Contains(d.Available, "sensor.b1_out")
	assert.Contains(d.Missing, "sensor.b2_out")
	assert.Equal(service.DIAGNOSTICS_STATUS_DEGRADED, d.Status)

	// flush answers once the snapshot is stored
	res, err = root.RequestFuture(trackerPID, domain.FlushSnapshotRequest{}, 2*time.Second).Result()
	require.NoError(err)
	assert.False(res.(domain.SaveSnapshotResponse).HasResponseError())

	saved, err := snapshots.Load(context.Background())
	require.NoError(err)
	assert.InDelta(30.0, saved.State.TotalDischargeCounter, 1e-9)
	assert.InDelta(2000.0, saved.State.TotalChargeCounter, 1e-9)

	as.Shutdown()
}

func TestTrackerActorSkipsFailedReads(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	cfg := trackerTestConfig()

	// a sensors actor that never answers makes every read time out
	silent := root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {}))
	cfg.Source.ReadTimeoutMillis = 100

	trackerPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTrackerActor(&cfg, service.NewEnergyTracker(cfg.Tracker, logger), silent, nil, nil, logger)
	}))

	time.Sleep(1500 * time.Millisecond)

	hcr, err := healthCheck(root, trackerPID)
	if err != nil {
		t.Error(err)
		return
	}
	assert.True(hcr.Healthy)
	assert.Contains(hcr.State, "last read failed")

	res, err := root.RequestFuture(trackerPID, domain.GetTrackerStateRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	assert.Nil(res.(domain.GetTrackerStateResponse).Summary.LastUpdate)

	as.Shutdown()
}

func TestTrackerActorRetriesMissingEntities(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	cfg := trackerTestConfig()
	cfg.Tracker.UpdateIntervalSeconds = 30
	cfg.Tracker.EntityRetryCount = 2
	cfg.Tracker.EntityRetryIntervalSeconds = 1

	// no configured entity is ever reported
	var reads atomic.Int32
	sensorsPID := root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(domain.ReadSensorsRequest); ok {
			reads.Add(1)
			ctx.Respond(domain.ReadSensorsResponse{States: map[string]string{}})
		}
	}))

	trackerPID := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTrackerActor(&cfg, service.NewEnergyTracker(cfg.Tracker, logger), sensorsPID, nil, nil, logger)
	}))

	diagnostics := func() domain.Diagnostics {
		res, err := root.RequestFuture(trackerPID, domain.GetDiagnosticsRequest{}, 2*time.Second).Result()
		if err != nil {
			t.Fatal(err)
		}
		return res.(domain.GetDiagnosticsResponse).Diagnostics
	}

	// startup read plus one read per retry
	time.Sleep(2600 * time.Millisecond)
	assert.Equal(int32(3), reads.Load())
	assert.Equal(uint(2), diagnostics().RetryCount)

	// retries exhausted, back to the regular interval
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(int32(3), reads.Load())
	assert.Equal(uint(2), diagnostics().RetryCount)

	as.Shutdown()
}

func healthCheck(ctx *actor.RootContext, pid *actor.PID) (*domain.ActorHealthResponse, error) {
	resp, err := ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	if err != nil {
		return nil, err
	}
	hcr, ok := resp.(domain.ActorHealthResponse)
	if !ok {
		return nil, errors.New("unexpected response type")
	}
	return &hcr, nil
}
