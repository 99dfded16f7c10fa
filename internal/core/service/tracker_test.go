package service

import (
	"testing"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	DISCHARGE_1 = "sensor.pylontech_battery_1_total_discharge_2"
	CHARGE_1    = "sensor.pylontech_battery_1_total_discharge"
	CURRENT_1   = "sensor.pylontech_battery_1_current"
	VOLTAGE_1   = "sensor.pylontech_battery_1_pack_voltage"
	DISCHARGE_2 = "sensor.pylontech_battery_2_total_discharge_2"
	CHARGE_2    = "sensor.pylontech_battery_2_total_discharge"
	CURRENT_2   = "sensor.pylontech_battery_2_current"
	VOLTAGE_2   = "sensor.pylontech_battery_2_pack_voltage"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func testTrackerConfig() config.TrackerConfig {
	return config.TrackerConfig{
		BatteryCount:             2,
		ChargeRate:               2000,
		ScaleFactor:              0.001,
		MaxCounterValue:          10000,
		CounterThreshold:         9000,
		UpdateIntervalSeconds:    60,
		BatteryCapacityKWh:       5.12,
		ChargingCurrentThreshold: 0.5,
		EntityRetryCount:         10,
	}
}

func newTestTracker(cfg config.TrackerConfig) (*EnergyTracker, *testClock) {
	clock := &testClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	return NewEnergyTrackerWithClock(cfg, zap.Must(zap.NewDevelopment()), clock.Now), clock
}

func TestInitialState(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	s := tracker.Summary()
	assert.Len(s.Batteries, 2)
	assert.InDelta(2.56, s.Batteries[0].StoredEnergyKWh, 0.0001)
	assert.InDelta(10.24, s.CapacityKWh, 0.0001)
	assert.InDelta(50, s.StoredEnergyPercent, 0.0001)
	assert.Equal(domain.CHARGE_STATUS_IDLE, s.ChargeStatus)
	assert.Zero(s.EstimatedChargeTimeHours)
	assert.Len(tracker.EntityIds(), 8)
}

func TestRefreshAccumulatesDischarge(t *testing.T) {
	assert := assert.New(t)

	tracker, clock := newTestTracker(testTrackerConfig())
	r := tracker.Refresh(map[string]string{DISCHARGE_1: "100", CHARGE_1: "20"})
	assert.Equal(2, r.Read)
	assert.Zero(tracker.Summary().TotalDischargeKWh, "first reading is only a baseline")

	clock.Advance(time.Minute)
	tracker.Refresh(map[string]string{DISCHARGE_1: "150", CHARGE_1: "20"})

	s := tracker.Summary()
	assert.InDelta(0.05, s.TotalDischargeKWh, 0.000001)
	assert.InDelta(0.05, s.EnergySinceLastChargeKWh, 0.000001)
	assert.Zero(s.TotalChargeKWh)
	assert.InDelta(2.51, s.Batteries[0].StoredEnergyKWh, 0.000001)
	assert.InDelta(2.56, s.Batteries[1].StoredEnergyKWh, 0.000001)
	assert.Equal(domain.CHARGE_STATUS_DISCHARGING, s.ChargeStatus)
	assert.Equal(uint64(2), tracker.State().UpdateCount)
}

func TestRefreshRollover(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "9999"})
	r := tracker.Refresh(map[string]string{DISCHARGE_1: "5"})

	assert.Equal(1, r.Rollovers)
	state := tracker.State()
	assert.Equal(6.0, state.TotalDischargeCounter)
	assert.Equal(uint64(1), state.RolloverCount)
}

func TestRefreshSkipsUnavailable(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "100"})
	r := tracker.Refresh(map[string]string{DISCHARGE_1: "unavailable", CHARGE_1: "abc"})

	assert.Zero(r.Read)
	assert.Contains(r.Skipped, DISCHARGE_1)
	assert.Contains(r.Skipped, CHARGE_1)
	assert.False(tracker.EntitiesAvailable())

	// the baseline survives the outage
	tracker.Refresh(map[string]string{DISCHARGE_1: "130"})
	assert.Equal(30.0, tracker.State().TotalDischargeCounter)
	assert.True(tracker.EntitiesAvailable())
}

func TestChargeStoresEnergyUpToCapacity(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{CHARGE_1: "0"})
	tracker.Refresh(map[string]string{CHARGE_1: "3000"})

	s := tracker.Summary()
	assert.InDelta(3.0, s.TotalChargeKWh, 0.000001)
	assert.InDelta(5.12, s.Batteries[0].StoredEnergyKWh, 0.000001)
}

func TestChargingTransitions(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	tracker, clock := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0", CURRENT_1: "-10", VOLTAGE_1: "52"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "1000", CURRENT_1: "-10", VOLTAGE_1: "52"})
	assert.InDelta(1.0, tracker.EnergySinceLastChargeKWh(), 0.000001)

	clock.Advance(time.Minute)
	r := tracker.Refresh(map[string]string{DISCHARGE_1: "1000", CURRENT_1: "10", VOLTAGE_1: "52"})
	assert.True(r.ChargingChanged)
	state := tracker.State()
	assert.True(state.IsCharging)
	require.NotNil(state.ChargeStartTime)
	assert.InDelta(1.0, tracker.EnergySinceLastChargeKWh(), 0.000001, "no previous charge, nothing to reset")

	clock.Advance(2 * time.Hour)
	r = tracker.Refresh(map[string]string{DISCHARGE_1: "1000", CURRENT_1: "0", VOLTAGE_1: "52"})
	assert.True(r.ChargingChanged)
	state = tracker.State()
	assert.False(state.IsCharging)
	require.NotNil(state.LastChargeCompleted)
	assert.InDelta(2.0, state.LastChargeDurationHours, 0.000001)

	// a charge starting more than an hour after the last one resets the counter
	clock.Advance(90 * time.Minute)
	tracker.Refresh(map[string]string{DISCHARGE_1: "1000", CURRENT_1: "5", VOLTAGE_1: "52"})
	assert.True(tracker.State().IsCharging)
	assert.Zero(tracker.EnergySinceLastChargeKWh())
}

func TestChargingUnchangedWithoutCurrent(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.SetChargeState(true)
	r := tracker.Refresh(map[string]string{DISCHARGE_1: "10"})
	assert.False(r.ChargingChanged)
	assert.True(tracker.State().IsCharging)
}

func TestEstimatedChargeTime(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "1000"})

	// 1 kWh at 2000 W with 20% margin
	assert.InDelta(0.6, tracker.EstimatedChargeTimeHours(), 0.000001)
}

func TestEstimatedChargeTimeUsesMeasuredRate(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "1000"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "1000", CURRENT_1: "20", VOLTAGE_1: "50"})

	assert.InDelta(1000, tracker.Summary().ChargeRateWatt, 0.001)
	assert.InDelta(1.2, tracker.EstimatedChargeTimeHours(), 0.000001)
}

func TestServiceAdjustCounters(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "40"})

	req, err := domain.ParseServiceCall(domain.SERVICE_ADJUST_COUNTERS, []byte(`{"charge_adjustment": 50}`))
	assert.NoError(err)
	assert.NoError(tracker.Apply(req))

	state := tracker.State()
	assert.Equal(50.0, state.TotalChargeCounter)
	assert.Equal(40.0, state.TotalDischargeCounter)

	err = tracker.AdjustCounters(f64(-100), nil)
	assert.True(domain.IsValidationError(err))
	assert.Equal(40.0, tracker.State().TotalDischargeCounter)
}

func TestServiceResets(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0", CHARGE_1: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "500", CHARGE_1: "200"})

	assert.NoError(tracker.Apply(domain.ResetEnergySinceChargeRequest{}))
	state := tracker.State()
	assert.Zero(state.EnergySinceLastChargeCounter)
	assert.Equal(500.0, state.TotalDischargeCounter)

	assert.NoError(tracker.Apply(domain.ResetCountersRequest{}))
	state = tracker.State()
	assert.Zero(state.TotalDischargeCounter)
	assert.Zero(state.TotalChargeCounter)
}

func TestServiceSetChargeState(t *testing.T) {
	assert := assert.New(t)

	tracker, clock := newTestTracker(testTrackerConfig())
	assert.NoError(tracker.Apply(domain.SetChargeStateRequest{IsCharging: true}))
	assert.Equal(domain.CHARGE_STATUS_CHARGING, tracker.ChargeStatus())

	clock.Advance(30 * time.Minute)
	assert.NoError(tracker.Apply(domain.SetChargeStateRequest{IsCharging: false}))
	state := tracker.State()
	assert.False(state.IsCharging)
	assert.InDelta(0.5, state.LastChargeDurationHours, 0.000001)
	assert.NotNil(state.LastChargeCompleted)
	assert.Nil(state.ChargeStartTime)
}

func TestServiceSetChargeStateKeepsEnergySinceCharge(t *testing.T) {
	assert := assert.New(t)

	tracker, clock := newTestTracker(testTrackerConfig())
	tracker.SetChargeState(true)
	clock.Advance(10 * time.Minute)
	tracker.SetChargeState(false)

	tracker.Refresh(map[string]string{DISCHARGE_1: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "300"})

	// a manual start long after the last charge does not reset the counter
	clock.Advance(2 * time.Hour)
	tracker.SetChargeState(true)
	state := tracker.State()
	assert.True(state.IsCharging)
	assert.NotNil(state.ChargeStartTime)
	assert.Equal(300.0, state.EnergySinceLastChargeCounter)
}

func TestServiceSetBatteryToFull(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	req, err := domain.ParseServiceCall(domain.SERVICE_SET_BATTERY_TO_FULL, nil)
	assert.NoError(err)
	assert.NoError(tracker.Apply(req))

	for _, b := range tracker.State().Batteries {
		assert.Equal(b.CapacityKWh, b.StoredEnergyKWh)
	}
	assert.InDelta(100, tracker.Summary().StoredEnergyPercent, 0.0001)
}

func TestServiceSetBatteryStoredEnergy(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	assert.NoError(tracker.SetBatteryStoredEnergy(2, 1.5, nil))
	assert.InDelta(1.5, tracker.State().Batteries[1].StoredEnergyKWh, 0.000001)

	assert.NoError(tracker.SetBatteryStoredEnergy(1, 6, f64(7)))
	b := tracker.State().Batteries[0]
	assert.Equal(7.0, b.CapacityKWh)
	assert.Equal(6.0, b.StoredEnergyKWh)

	for _, err := range []error{
		tracker.SetBatteryStoredEnergy(3, 1, nil),
		tracker.SetBatteryStoredEnergy(0, 1, nil),
		tracker.SetBatteryStoredEnergy(1, -1, nil),
		tracker.SetBatteryStoredEnergy(1, 8, nil),
		tracker.SetBatteryStoredEnergy(1, 1, f64(0)),
	} {
		assert.True(domain.IsValidationError(err), "expected validation error, got %v", err)
	}
	assert.Equal(6.0, tracker.State().Batteries[0].StoredEnergyKWh, "rejected calls leave the state unchanged")
}

func TestServiceSetBatteryCapacity(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())

	// a larger capacity does not add energy
	assert.NoError(tracker.SetBatteryCapacity(1, 10.24))
	b := tracker.State().Batteries[0]
	assert.Equal(10.24, b.CapacityKWh)
	assert.InDelta(2.56, b.StoredEnergyKWh, 0.000001)

	// a smaller one clamps it
	assert.NoError(tracker.SetBatteryCapacity(1, 2))
	b = tracker.State().Batteries[0]
	assert.Equal(2.0, b.CapacityKWh)
	assert.InDelta(2.0, b.StoredEnergyKWh, 0.000001)

	assert.True(domain.IsValidationError(tracker.SetBatteryCapacity(1, -2)))
	assert.True(domain.IsValidationError(tracker.SetBatteryCapacity(5, 2)))
}

func TestSnapshotRestore(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	tracker.Refresh(map[string]string{DISCHARGE_1: "0", DISCHARGE_2: "0"})
	tracker.Refresh(map[string]string{DISCHARGE_1: "300", DISCHARGE_2: "200"})
	snapshot := tracker.Snapshot()

	cfg := testTrackerConfig()
	cfg.BatteryCount = 3
	restored, _ := newTestTracker(cfg)
	restored.Restore(snapshot)

	state := restored.State()
	assert.Equal(500.0, state.TotalDischargeCounter)
	assert.Len(state.Batteries, 3)
	assert.InDelta(2.26, state.Batteries[0].StoredEnergyKWh, 0.000001)
	assert.InDelta(2.56, state.Batteries[2].StoredEnergyKWh, 0.000001)
	assert.Equal(3, state.Batteries[2].Number)

	// restored baselines keep counting from the saved value
	restored.Refresh(map[string]string{DISCHARGE_1: "310"})
	assert.Equal(510.0, restored.State().TotalDischargeCounter)
}

func TestDiagnostics(t *testing.T) {
	assert := assert.New(t)

	tracker, _ := newTestTracker(testTrackerConfig())
	assert.Equal(DIAGNOSTICS_STATUS_WAITING, tracker.Diagnostics().Status)

	tracker.Refresh(map[string]string{
		DISCHARGE_1: "100", CHARGE_1: "50", CURRENT_1: "150", VOLTAGE_1: "52",
		DISCHARGE_2: "-3", CHARGE_2: "oops", CURRENT_2: "1", VOLTAGE_2: "52",
	})
	d := tracker.Diagnostics()
	assert.Equal(DIAGNOSTICS_STATUS_DEGRADED, d.Status)
	assert.Equal([]string{CHARGE_2}, d.Missing)
	assert.Contains(d.Abnormal, CURRENT_1)
	assert.Contains(d.Abnormal, DISCHARGE_2)
	assert.Contains(d.Abnormal, CHARGE_2)
	assert.Empty(d.CounterActivity)

	tracker.Refresh(map[string]string{
		DISCHARGE_1: "120", CHARGE_1: "50", CURRENT_1: "1", VOLTAGE_1: "52",
		DISCHARGE_2: "1", CHARGE_2: "1", CURRENT_2: "1", VOLTAGE_2: "52",
	})
	d = tracker.Diagnostics()
	assert.Equal(DIAGNOSTICS_STATUS_OK, d.Status)
	assert.True(d.CounterActivity[DISCHARGE_1])
	assert.False(d.CounterActivity[CHARGE_1])
}
