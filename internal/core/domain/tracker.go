package domain

import "time"

const (
	ENTITY_KIND_DISCHARGE = "discharge"
	ENTITY_KIND_CHARGE    = "charge"
	ENTITY_KIND_CURRENT   = "current"
	ENTITY_KIND_VOLTAGE   = "voltage"

	CHARGE_STATUS_CHARGING    = "charging"
	CHARGE_STATUS_DISCHARGING = "discharging"
	CHARGE_STATUS_IDLE        = "idle"

	// 1 counter unit = 1 Wh
	COUNTER_UNIT_KWH = 0.001
)

// BatteryEntities holds the source entity ids of a single battery. Empty
// strings mean the value is not tracked.
type BatteryEntities struct {
	Battery   int    `json:"battery"`
	Discharge string `json:"discharge,omitempty"`
	Charge    string `json:"charge,omitempty"`
	Current   string `json:"current,omitempty"`
	Voltage   string `json:"voltage,omitempty"`
}

func (e BatteryEntities) ByKind(kind string) string {
	switch kind {
	case ENTITY_KIND_DISCHARGE:
		return e.Discharge
	case ENTITY_KIND_CHARGE:
		return e.Charge
	case ENTITY_KIND_CURRENT:
		return e.Current
	case ENTITY_KIND_VOLTAGE:
		return e.Voltage
	}
	return ""
}

type BatteryState struct {
	Number               int      `json:"number"`
	StoredEnergyKWh      float64  `json:"stored_energy_kwh"`
	CapacityKWh          float64  `json:"capacity_kwh"`
	LastDischargeCounter *float64 `json:"last_discharge_counter,omitempty"`
	LastChargeCounter    *float64 `json:"last_charge_counter,omitempty"`
	DischargeCounter     float64  `json:"discharge_counter"`
	ChargeCounter        float64  `json:"charge_counter"`
	LastCurrent          *float64 `json:"last_current,omitempty"`
	LastVoltage          *float64 `json:"last_voltage,omitempty"`
}

func (b BatteryState) StoredEnergyPercent() float64 {
	if b.CapacityKWh <= 0 {
		return 0
	}
	return b.StoredEnergyKWh / b.CapacityKWh * 100
}

// TrackerState is the mutable state owned by the tracker coordinator. Totals
// are in counter units.
type TrackerState struct {
	TotalDischargeCounter        float64        `json:"total_discharge_counter"`
	TotalChargeCounter           float64        `json:"total_charge_counter"`
	EnergySinceLastChargeCounter float64        `json:"energy_since_last_charge_counter"`
	IsCharging                   bool           `json:"is_charging"`
	ChargeStartTime              *time.Time     `json:"charge_start_time,omitempty"`
	LastChargeCompleted          *time.Time     `json:"last_charge_completed,omitempty"`
	LastChargeDurationHours      float64        `json:"last_charge_duration_hours"`
	Batteries                    []BatteryState `json:"batteries"`
	LastUpdate                   *time.Time     `json:"last_update,omitempty"`
	UpdateCount                  uint64         `json:"update_count"`
	RolloverCount                uint64         `json:"rollover_count"`
	RetryCount                   uint           `json:"retry_count"`
}

// TrackerSnapshot is the persisted form of TrackerState.
type TrackerSnapshot struct {
	State   TrackerState `json:"state"`
	SavedAt time.Time    `json:"saved_at"`
}

// TrackerSummary is the computed, read-only view of the tracker.
type TrackerSummary struct {
	TotalDischargeKWh        float64        `json:"total_discharge_kwh"`
	TotalChargeKWh           float64        `json:"total_charge_kwh"`
	EnergySinceLastChargeKWh float64        `json:"energy_since_last_charge_kwh"`
	EstimatedChargeTimeHours float64        `json:"estimated_charge_time_hours"`
	ChargeStatus             string         `json:"charge_status"`
	IsCharging               bool           `json:"is_charging"`
	ChargeRateWatt           float64        `json:"charge_rate_watt"`
	ConfiguredChargeRateWatt float64        `json:"configured_charge_rate_watt"`
	StoredEnergyKWh          float64        `json:"stored_energy_kwh"`
	CapacityKWh              float64        `json:"capacity_kwh"`
	StoredEnergyPercent      float64        `json:"stored_energy_percent"`
	LastChargeCompleted      *time.Time     `json:"last_charge_completed,omitempty"`
	LastChargeDurationHours  float64        `json:"last_charge_duration_hours"`
	LastUpdate               *time.Time     `json:"last_update,omitempty"`
	Batteries                []BatteryState `json:"batteries"`
}

type ChargeRateInfo struct {
	InstantaneousWatt   float64  `json:"instantaneous_watt"`
	WeightedAverageWatt float64  `json:"weighted_average_watt"`
	CounterBasedWatt    *float64 `json:"counter_based_watt,omitempty"`
	BlendedWatt         float64  `json:"blended_watt"`
	ActiveBatteries     int      `json:"active_batteries"`
}

type Diagnostics struct {
	Status            string            `json:"status"`
	Entities          []BatteryEntities `json:"entities"`
	Available         []string          `json:"available"`
	Missing           []string          `json:"missing"`
	Abnormal          map[string]string `json:"abnormal"`
	CounterActivity   map[string]bool   `json:"counter_activity"`
	ChargeRate        ChargeRateInfo    `json:"charge_rate"`
	RetryCount        uint              `json:"retry_count"`
	UpdateCount       uint64            `json:"update_count"`
	RolloverCount     uint64            `json:"rollover_count"`
	ScaleFactor       float64           `json:"scale_factor"`
	LastUpdate        *time.Time        `json:"last_update,omitempty"`
	LastSnapshotSaved *time.Time        `json:"last_snapshot_saved,omitempty"`
}

// RefreshResult reports what a single refresh cycle did.
type RefreshResult struct {
	Read            int
	Skipped         []string
	Rollovers       int
	ChargingChanged bool
}
