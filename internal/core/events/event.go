package events

import (
	. "github.com/berfenger/battracker2mqtt/internal/core/domain"
)

func TrackerSummaryToUpdateEvents(s TrackerSummary) []any {
	var events []any

	// Lifetime totals
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_DISCHARGE_ENERGY,
		},
		Value:    s.TotalDischargeKWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_CHARGE_ENERGY,
		},
		Value:    s.TotalChargeKWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ENERGY_SINCE_LAST_CHARGE,
		},
		Value:    s.EnergySinceLastChargeKWh,
		Decimals: 3,
	})
	// Charge estimation
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_ESTIMATED_CHARGE_TIME,
		},
		Value:    s.EstimatedChargeTimeHours,
		Decimals: 2,
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGE_STATUS,
		},
		Value: s.ChargeStatus,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGE_RATE,
		},
		Value:    s.ChargeRateWatt,
		Decimals: 0,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LAST_CHARGE_DURATION,
		},
		Value:    s.LastChargeDurationHours,
		Decimals: 2,
	})
	// Storage
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_STORED_ENERGY,
		},
		Value:    s.StoredEnergyKWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_STORED_ENERGY_PERCENT,
		},
		Value:    s.StoredEnergyPercent,
		Decimals: 1,
	})
	for _, b := range s.Batteries {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: BatteryStoredEnergySensorId(b.Number),
			},
			Value:    b.StoredEnergyKWh,
			Decimals: 3,
		})
	}
	events = append(events, ChargingSwitchUpdateEvent(s.IsCharging))

	return events
}

func ChargingSwitchUpdateEvent(charging bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_CHARGING,
		},
		Value: charging,
	}
}

func DiagnosticUpdateEvent(d Diagnostics) any {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_DIAGNOSTIC,
		},
		Value: d.Status,
	}
}
