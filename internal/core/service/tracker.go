package service

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	CHARGE_RESET_AFTER       = 1 * time.Hour
	CHARGE_TIME_SAFETY       = 1.2
	MIN_MEASURED_CHARGE_RATE = 100
)

type EnergyTracker struct {
	cfg        config.TrackerConfig
	entities   []domain.BatteryEntities
	state      domain.TrackerState
	rate       *ChargeRateTracker
	lastStates map[string]string
	previous   map[string]float64
	now        func() time.Time
	logger     *zap.Logger
}

func NewEnergyTracker(cfg config.TrackerConfig, logger *zap.Logger) *EnergyTracker {
	return NewEnergyTrackerWithClock(cfg, logger, time.Now)
}

func NewEnergyTrackerWithClock(cfg config.TrackerConfig, logger *zap.Logger, now func() time.Time) *EnergyTracker {
	t := &EnergyTracker{
		cfg:        cfg,
		entities:   DetectEntities(cfg),
		rate:       NewChargeRateTracker(),
		lastStates: map[string]string{},
		previous:   map[string]float64{},
		now:        now,
		logger:     logger,
	}
	t.state.Batteries = initialBatteries(cfg)
	return t
}

func (t *EnergyTracker) Entities() []domain.BatteryEntities {
	return t.entities
}

func (t *EnergyTracker) EntityIds() []string {
	return EntityIds(t.entities)
}

// State returns a copy of the owned state.
func (t *EnergyTracker) State() domain.TrackerState {
	s := t.state
	s.Batteries = append([]domain.BatteryState(nil), t.state.Batteries...)
	return s
}

// EntitiesAvailable reports whether at least one counter entity had a
// readable value in the last refresh.
func (t *EnergyTracker) EntitiesAvailable() bool {
	for _, be := range t.entities {
		for _, id := range []string{be.Discharge, be.Charge} {
			if id == "" {
				continue
			}
			if _, ok := parseState(t.lastStates[id]); ok {
				return true
			}
		}
	}
	return false
}

// counterValues returns the readable counter values of the last refresh.
func (t *EnergyTracker) counterValues() map[string]float64 {
	values := map[string]float64{}
	for _, be := range t.entities {
		for _, id := range []string{be.Discharge, be.Charge} {
			if value, ok := parseState(t.lastStates[id]); ok && id != "" {
				values[id] = value
			}
		}
	}
	return values
}

func (t *EnergyTracker) RetryCount() uint {
	return t.state.RetryCount
}

func (t *EnergyTracker) IncrementRetry() uint {
	t.state.RetryCount++
	return t.state.RetryCount
}

// Refresh applies a set of raw entity states to the tracker. Missing or
// unreadable entities leave the matching battery values unchanged.
func (t *EnergyTracker) Refresh(states map[string]string) domain.RefreshResult {
	now := t.now()
	result := domain.RefreshResult{}
	t.previous = t.counterValues()
	t.lastStates = states

	for i := range t.state.Batteries {
		battery := &t.state.Batteries[i]
		if battery.Number > len(t.entities) {
			continue
		}
		ents := t.entities[battery.Number-1]

		for _, kind := range []string{domain.ENTITY_KIND_DISCHARGE, domain.ENTITY_KIND_CHARGE} {
			entityId := ents.ByKind(kind)
			if entityId == "" {
				continue
			}
			value, ok := parseState(states[entityId])
			if !ok {
				t.logger.Debug("tracker: entity not available", zap.String("entity", entityId), zap.Int("battery", battery.Number))
				result.Skipped = append(result.Skipped, entityId)
				continue
			}
			result.Read++
			if t.processCounter(kind, battery, value) {
				result.Rollovers++
			}
		}

		if value, ok := parseState(states[ents.Current]); ok && ents.Current != "" {
			battery.LastCurrent = &value
			result.Read++
		}
		if value, ok := parseState(states[ents.Voltage]); ok && ents.Voltage != "" {
			battery.LastVoltage = &value
			result.Read++
		}
	}

	result.ChargingChanged = t.updateChargingStatus(now, states)
	t.rate.Update(now, t.state.Batteries, t.state.TotalChargeCounter, t.state.IsCharging)

	t.state.LastUpdate = &now
	t.state.UpdateCount++
	t.state.RolloverCount += uint64(result.Rollovers)
	return result
}

func (t *EnergyTracker) processCounter(kind string, battery *domain.BatteryState, value float64) bool {
	prev := battery.LastDischargeCounter
	if kind == domain.ENTITY_KIND_CHARGE {
		prev = battery.LastChargeCounter
	}

	cd := ProcessCounter(prev, value, t.cfg.MaxCounterValue, t.cfg.CounterThreshold)
	current := value
	if kind == domain.ENTITY_KIND_CHARGE {
		battery.LastChargeCounter = &current
	} else {
		battery.LastDischargeCounter = &current
	}

	switch {
	case cd.Baseline:
		t.logger.Sugar().Debugf("tracker: first %s reading for battery %d: %v", kind, battery.Number, value)
		return false
	case cd.Rollover && cd.Suspicious:
		t.logger.Sugar().Warnf("tracker: %s counter of battery %d dropped from %v to %v below rollover threshold, counting as rollover (delta %v)",
			kind, battery.Number, *prev, value, cd.Delta)
	case cd.Rollover:
		t.logger.Sugar().Infof("tracker: %s counter rollover on battery %d: %v -> %v, delta %v", kind, battery.Number, *prev, value, cd.Delta)
	}

	if cd.Delta <= 0 {
		return cd.Rollover
	}
	if kind == domain.ENTITY_KIND_DISCHARGE {
		t.state.TotalDischargeCounter += cd.Delta
		t.state.EnergySinceLastChargeCounter += cd.Delta
		battery.DischargeCounter += cd.Delta
		t.applyDischarge(battery, cd.Delta*domain.COUNTER_UNIT_KWH)
	} else {
		t.state.TotalChargeCounter += cd.Delta
		battery.ChargeCounter += cd.Delta
		t.applyCharge(battery, cd.Delta*domain.COUNTER_UNIT_KWH)
	}
	return cd.Rollover
}

// updateChargingStatus derives the charging flag from the current sensors.
// Without any readable current sensor the flag keeps its last value.
func (t *EnergyTracker) updateChargingStatus(now time.Time, states map[string]string) bool {
	readable := false
	charging := false
	for _, be := range t.entities {
		if be.Current == "" {
			continue
		}
		current, ok := parseState(states[be.Current])
		if !ok {
			continue
		}
		readable = true
		if current > t.cfg.ChargingCurrentThreshold {
			charging = true
			break
		}
	}
	if !readable {
		return false
	}
	return t.setCharging(now, charging, true)
}

// setCharging records charge start and end transitions. With resetSinceCharge
// a charge starting more than CHARGE_RESET_AFTER after the last completed one
// clears the energy since last charge.
func (t *EnergyTracker) setCharging(now time.Time, charging bool, resetSinceCharge bool) bool {
	wasCharging := t.state.IsCharging
	switch {
	case charging && !wasCharging:
		start := now
		t.state.ChargeStartTime = &start
		t.logger.Info("tracker: charging started", zap.Time("at", now))
		if resetSinceCharge && t.state.LastChargeCompleted != nil && now.Sub(*t.state.LastChargeCompleted) > CHARGE_RESET_AFTER {
			t.logger.Info("tracker: resetting energy since last charge")
			t.state.EnergySinceLastChargeCounter = 0
		}
	case !charging && wasCharging:
		end := now
		t.state.LastChargeCompleted = &end
		if t.state.ChargeStartTime != nil {
			t.state.LastChargeDurationHours = now.Sub(*t.state.ChargeStartTime).Hours()
			t.logger.Sugar().Infof("tracker: charging completed, duration %.2f hours", t.state.LastChargeDurationHours)
		}
		t.state.ChargeStartTime = nil
	}
	t.state.IsCharging = charging
	return charging != wasCharging
}

func (t *EnergyTracker) EnergySinceLastChargeKWh() float64 {
	return t.state.EnergySinceLastChargeCounter * domain.COUNTER_UNIT_KWH
}

// EstimatedChargeTimeHours uses the measured charge rate while charging above
// 100 W, the configured rate otherwise, with a 20% safety margin.
func (t *EnergyTracker) EstimatedChargeTimeHours() float64 {
	energy := t.EnergySinceLastChargeKWh()
	if energy <= 0 {
		return 0
	}
	rate := t.cfg.ChargeRate
	if measured := t.rate.Rate(); t.state.IsCharging && measured > MIN_MEASURED_CHARGE_RATE {
		rate = measured
	}
	if rate <= 0 {
		return 0
	}
	return energy * 1000 / rate * CHARGE_TIME_SAFETY
}

func (t *EnergyTracker) ChargeStatus() string {
	if t.state.IsCharging {
		return domain.CHARGE_STATUS_CHARGING
	}
	if t.state.EnergySinceLastChargeCounter > 0 {
		return domain.CHARGE_STATUS_DISCHARGING
	}
	return domain.CHARGE_STATUS_IDLE
}

func (t *EnergyTracker) Summary() domain.TrackerSummary {
	stored, capacity, percent := t.StorageTotals()
	return domain.TrackerSummary{
		TotalDischargeKWh:        t.state.TotalDischargeCounter * domain.COUNTER_UNIT_KWH,
		TotalChargeKWh:           t.state.TotalChargeCounter * domain.COUNTER_UNIT_KWH,
		EnergySinceLastChargeKWh: t.EnergySinceLastChargeKWh(),
		EstimatedChargeTimeHours: t.EstimatedChargeTimeHours(),
		ChargeStatus:             t.ChargeStatus(),
		IsCharging:               t.state.IsCharging,
		ChargeRateWatt:           t.rate.Rate(),
		ConfiguredChargeRateWatt: t.cfg.ChargeRate,
		StoredEnergyKWh:          stored,
		CapacityKWh:              capacity,
		StoredEnergyPercent:      percent,
		LastChargeCompleted:      t.state.LastChargeCompleted,
		LastChargeDurationHours:  t.state.LastChargeDurationHours,
		LastUpdate:               t.state.LastUpdate,
		Batteries:                append([]domain.BatteryState(nil), t.state.Batteries...),
	}
}

func (t *EnergyTracker) Snapshot() domain.TrackerSnapshot {
	return domain.TrackerSnapshot{
		State:   t.State(),
		SavedAt: t.now(),
	}
}

// Restore loads a saved state. Batteries beyond the configured count are
// dropped and missing ones start from the default state.
func (t *EnergyTracker) Restore(snapshot domain.TrackerSnapshot) {
	restored := snapshot.State
	batteries := initialBatteries(t.cfg)
	for _, b := range restored.Batteries {
		if b.Number >= 1 && b.Number <= len(batteries) {
			batteries[b.Number-1] = b
		}
	}
	restored.Batteries = batteries
	t.state = restored
	t.rate.Reset()
}

// Services

func (t *EnergyTracker) Apply(req domain.ServiceRequest) error {
	switch r := req.(type) {
	case domain.ResetCountersRequest:
		t.ResetCounters()
	case domain.ResetEnergySinceChargeRequest:
		t.ResetEnergySinceCharge()
	case domain.SetChargeStateRequest:
		t.SetChargeState(r.IsCharging)
	case domain.AdjustCountersRequest:
		return t.AdjustCounters(r.DischargeAdjustment, r.ChargeAdjustment)
	case domain.SetBatteryStoredEnergyRequest:
		return t.SetBatteryStoredEnergy(r.BatteryNum, r.EnergyKWh, r.CapacityKWh)
	case domain.SetBatteryToFullRequest:
		return t.SetBatteryToFull(r.BatteryNum)
	case domain.SetBatteryCapacityRequest:
		return t.SetBatteryCapacity(r.BatteryNum, r.CapacityKWh)
	default:
		return domain.ErrUnknownService
	}
	return nil
}

func (t *EnergyTracker) ResetCounters() {
	t.logger.Info("tracker: resetting all energy counters")
	t.state.TotalDischargeCounter = 0
	t.state.TotalChargeCounter = 0
	t.state.EnergySinceLastChargeCounter = 0
	t.rate.Reset()
}

func (t *EnergyTracker) ResetEnergySinceCharge() {
	t.logger.Info("tracker: resetting energy since last charge")
	t.state.EnergySinceLastChargeCounter = 0
}

func (t *EnergyTracker) SetChargeState(isCharging bool) {
	t.logger.Info("tracker: manual charge state", zap.Bool("charging", isCharging))
	t.setCharging(t.now(), isCharging, false)
}

// AdjustCounters adds the given amounts (counter units) to the totals. Nil
// adjustments leave the total unchanged.
func (t *EnergyTracker) AdjustCounters(dischargeAdjustment, chargeAdjustment *float64) error {
	if dischargeAdjustment != nil {
		if err := checkAdjustment("discharge_adjustment", *dischargeAdjustment, t.state.TotalDischargeCounter); err != nil {
			return err
		}
	}
	if chargeAdjustment != nil {
		if err := checkAdjustment("charge_adjustment", *chargeAdjustment, t.state.TotalChargeCounter); err != nil {
			return err
		}
	}
	if dischargeAdjustment != nil {
		t.state.TotalDischargeCounter += *dischargeAdjustment
		t.logger.Sugar().Infof("tracker: adjusted total discharge counter to %v (%.2f kWh)",
			t.state.TotalDischargeCounter, t.state.TotalDischargeCounter*domain.COUNTER_UNIT_KWH)
	}
	if chargeAdjustment != nil {
		t.state.TotalChargeCounter += *chargeAdjustment
		t.rate.Reset()
		t.logger.Sugar().Infof("tracker: adjusted total charge counter to %v (%.2f kWh)",
			t.state.TotalChargeCounter, t.state.TotalChargeCounter*domain.COUNTER_UNIT_KWH)
	}
	return nil
}

func checkAdjustment(field string, adjustment, total float64) error {
	if math.IsNaN(adjustment) || math.IsInf(adjustment, 0) {
		return domain.NewValidationError(field, "must be a finite number")
	}
	if total+adjustment < 0 {
		return domain.NewValidationError(field, "would make the total negative (%v%+v)", total, adjustment)
	}
	return nil
}

// parseState converts a raw entity state into a number. Empty, unknown and
// unavailable states are not readable.
func parseState(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "unknown", "unavailable", "none":
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// ensure interface compliance
var _ port.EnergyTracker = (*EnergyTracker)(nil)
