package service

import (
	"math"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
)

const INITIAL_STORED_ENERGY_RATIO = 0.5

func initialBatteries(cfg config.TrackerConfig) []domain.BatteryState {
	batteries := make([]domain.BatteryState, cfg.BatteryCount)
	for i := range batteries {
		batteries[i] = domain.BatteryState{
			Number:          i + 1,
			CapacityKWh:     cfg.BatteryCapacityKWh,
			StoredEnergyKWh: cfg.BatteryCapacityKWh * INITIAL_STORED_ENERGY_RATIO,
		}
	}
	return batteries
}

func (t *EnergyTracker) applyDischarge(battery *domain.BatteryState, kwh float64) {
	battery.StoredEnergyKWh = math.Max(0, battery.StoredEnergyKWh-kwh)
}

func (t *EnergyTracker) applyCharge(battery *domain.BatteryState, kwh float64) {
	battery.StoredEnergyKWh = math.Min(battery.CapacityKWh, battery.StoredEnergyKWh+kwh)
}

func (t *EnergyTracker) battery(num int) (*domain.BatteryState, error) {
	if num < 1 || num > len(t.state.Batteries) {
		return nil, domain.NewValidationError("battery_num", "must be between 1 and %d, got %d", len(t.state.Batteries), num)
	}
	return &t.state.Batteries[num-1], nil
}

// StorageTotals returns the stored energy and capacity over all batteries.
func (t *EnergyTracker) StorageTotals() (stored, capacity, percent float64) {
	for _, b := range t.state.Batteries {
		stored += b.StoredEnergyKWh
		capacity += b.CapacityKWh
	}
	if capacity > 0 {
		percent = stored / capacity * 100
	}
	return
}

// SetBatteryStoredEnergy sets the stored energy of a battery, optionally
// updating its capacity first. Energy must be within [0, capacity].
func (t *EnergyTracker) SetBatteryStoredEnergy(num int, energyKWh float64, capacityKWh *float64) error {
	battery, err := t.battery(num)
	if err != nil {
		return err
	}
	if math.IsNaN(energyKWh) || math.IsInf(energyKWh, 0) || energyKWh < 0 {
		return domain.NewValidationError("energy_kwh", "must be a non negative number, got %v", energyKWh)
	}
	capacity := battery.CapacityKWh
	if capacityKWh != nil {
		if err := checkCapacity(*capacityKWh); err != nil {
			return err
		}
		capacity = *capacityKWh
	}
	if energyKWh > capacity {
		return domain.NewValidationError("energy_kwh", "%.3f kWh exceeds the capacity of battery %d (%.3f kWh)", energyKWh, num, capacity)
	}
	battery.CapacityKWh = capacity
	battery.StoredEnergyKWh = energyKWh
	t.logger.Sugar().Infof("tracker: battery %d stored energy set to %.3f kWh (%.1f%%)", num, energyKWh, battery.StoredEnergyPercent())
	return nil
}

// SetBatteryToFull fills one battery, or all of them when num is nil.
func (t *EnergyTracker) SetBatteryToFull(num *int) error {
	if num == nil {
		for i := range t.state.Batteries {
			t.state.Batteries[i].StoredEnergyKWh = t.state.Batteries[i].CapacityKWh
		}
		t.logger.Info("tracker: all batteries set to full")
		return nil
	}
	battery, err := t.battery(*num)
	if err != nil {
		return err
	}
	battery.StoredEnergyKWh = battery.CapacityKWh
	t.logger.Sugar().Infof("tracker: battery %d set to full", *num)
	return nil
}

// SetBatteryCapacity changes the capacity of a battery. Stored energy is kept,
// clamped to the new capacity.
func (t *EnergyTracker) SetBatteryCapacity(num int, capacityKWh float64) error {
	battery, err := t.battery(num)
	if err != nil {
		return err
	}
	if err := checkCapacity(capacityKWh); err != nil {
		return err
	}
	battery.CapacityKWh = capacityKWh
	battery.StoredEnergyKWh = math.Min(battery.StoredEnergyKWh, capacityKWh)
	t.logger.Sugar().Infof("tracker: battery %d capacity set to %.3f kWh", num, capacityKWh)
	return nil
}

func checkCapacity(capacityKWh float64) error {
	if math.IsNaN(capacityKWh) || math.IsInf(capacityKWh, 0) || capacityKWh <= 0 {
		return domain.NewValidationError("capacity_kwh", "must be greater than 0, got %v", capacityKWh)
	}
	return nil
}
