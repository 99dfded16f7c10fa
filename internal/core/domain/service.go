package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

const (
	SERVICE_RESET_COUNTERS            = "reset_counters"
	SERVICE_RESET_ENERGY_SINCE_CHARGE = "reset_energy_since_charge"
	SERVICE_SET_CHARGE_STATE          = "set_charge_state"
	SERVICE_ADJUST_COUNTERS           = "adjust_counters"
	SERVICE_SET_BATTERY_STORED_ENERGY = "set_battery_stored_energy"
	SERVICE_SET_BATTERY_TO_FULL       = "set_battery_to_full"
	SERVICE_SET_BATTERY_CAPACITY      = "set_battery_capacity"
)

var ServiceNames = []string{
	SERVICE_RESET_COUNTERS,
	SERVICE_RESET_ENERGY_SINCE_CHARGE,
	SERVICE_SET_CHARGE_STATE,
	SERVICE_ADJUST_COUNTERS,
	SERVICE_SET_BATTERY_STORED_ENERGY,
	SERVICE_SET_BATTERY_TO_FULL,
	SERVICE_SET_BATTERY_CAPACITY,
}

// ServiceRequest

type ServiceRequest interface {
	ActorRequest
	ServiceName() string
}

type ServiceRequestMixIn struct {
	ActorRequestMixIn
}

// ServiceResponse is the reply to every ServiceRequest. ResponseError holds a
// *ValidationError when the parameters were rejected.
type ServiceResponse struct {
	ActorResponseMixIn
	Service string
	Summary TrackerSummary
}

// Services

type ResetCountersRequest struct {
	ServiceRequestMixIn
}

func (ResetCountersRequest) ServiceName() string { return SERVICE_RESET_COUNTERS }

type ResetEnergySinceChargeRequest struct {
	ServiceRequestMixIn
}

func (ResetEnergySinceChargeRequest) ServiceName() string {
	return SERVICE_RESET_ENERGY_SINCE_CHARGE
}

type SetChargeStateRequest struct {
	ServiceRequestMixIn
	IsCharging bool
}

func (SetChargeStateRequest) ServiceName() string { return SERVICE_SET_CHARGE_STATE }

type AdjustCountersRequest struct {
	ServiceRequestMixIn
	DischargeAdjustment *float64
	ChargeAdjustment    *float64
}

func (AdjustCountersRequest) ServiceName() string { return SERVICE_ADJUST_COUNTERS }

type SetBatteryStoredEnergyRequest struct {
	ServiceRequestMixIn
	BatteryNum  int
	EnergyKWh   float64
	CapacityKWh *float64
}

func (SetBatteryStoredEnergyRequest) ServiceName() string {
	return SERVICE_SET_BATTERY_STORED_ENERGY
}

type SetBatteryToFullRequest struct {
	ServiceRequestMixIn
	BatteryNum *int
}

func (SetBatteryToFullRequest) ServiceName() string { return SERVICE_SET_BATTERY_TO_FULL }

type SetBatteryCapacityRequest struct {
	ServiceRequestMixIn
	BatteryNum  int
	CapacityKWh float64
}

func (SetBatteryCapacityRequest) ServiceName() string { return SERVICE_SET_BATTERY_CAPACITY }

// service call payloads

type serviceCallFields struct {
	IsCharging          *bool    `json:"is_charging"`
	DischargeAdjustment *float64 `json:"discharge_adjustment"`
	ChargeAdjustment    *float64 `json:"charge_adjustment"`
	BatteryNum          *float64 `json:"battery_num"`
	EnergyKWh           *float64 `json:"energy_kwh"`
	CapacityKWh         *float64 `json:"capacity_kwh"`
}

// ParseServiceCall builds a ServiceRequest from a service name and its JSON
// payload. An empty payload is accepted for services without required fields.
func ParseServiceCall(name string, payload []byte) (ServiceRequest, error) {
	var fields serviceCallFields
	if len(bytes.TrimSpace(payload)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fields); err != nil {
			return nil, NewValidationError("payload", "%s", err)
		}
	}

	switch name {
	case SERVICE_RESET_COUNTERS:
		return ResetCountersRequest{}, nil
	case SERVICE_RESET_ENERGY_SINCE_CHARGE:
		return ResetEnergySinceChargeRequest{}, nil
	case SERVICE_SET_CHARGE_STATE:
		if fields.IsCharging == nil {
			return nil, NewValidationError("is_charging", "field is required")
		}
		return SetChargeStateRequest{IsCharging: *fields.IsCharging}, nil
	case SERVICE_ADJUST_COUNTERS:
		return AdjustCountersRequest{
			DischargeAdjustment: fields.DischargeAdjustment,
			ChargeAdjustment:    fields.ChargeAdjustment,
		}, nil
	case SERVICE_SET_BATTERY_STORED_ENERGY:
		batteryNum, err := requiredBatteryNum(fields.BatteryNum)
		if err != nil {
			return nil, err
		}
		if fields.EnergyKWh == nil {
			return nil, NewValidationError("energy_kwh", "field is required")
		}
		return SetBatteryStoredEnergyRequest{
			BatteryNum:  batteryNum,
			EnergyKWh:   *fields.EnergyKWh,
			CapacityKWh: fields.CapacityKWh,
		}, nil
	case SERVICE_SET_BATTERY_TO_FULL:
		if fields.BatteryNum == nil {
			return SetBatteryToFullRequest{}, nil
		}
		batteryNum, err := requiredBatteryNum(fields.BatteryNum)
		if err != nil {
			return nil, err
		}
		return SetBatteryToFullRequest{BatteryNum: &batteryNum}, nil
	case SERVICE_SET_BATTERY_CAPACITY:
		batteryNum, err := requiredBatteryNum(fields.BatteryNum)
		if err != nil {
			return nil, err
		}
		if fields.CapacityKWh == nil {
			return nil, NewValidationError("capacity_kwh", "field is required")
		}
		return SetBatteryCapacityRequest{
			BatteryNum:  batteryNum,
			CapacityKWh: *fields.CapacityKWh,
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
}

func requiredBatteryNum(value *float64) (int, error) {
	if value == nil {
		return 0, NewValidationError("battery_num", "field is required")
	}
	if *value != math.Trunc(*value) {
		return 0, NewValidationError("battery_num", "must be an integer, got %v", *value)
	}
	return int(*value), nil
}

// ensure interface compliance
var _ ServiceRequest = (*ResetCountersRequest)(nil)
var _ ServiceRequest = (*SetBatteryCapacityRequest)(nil)
