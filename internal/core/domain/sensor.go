package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE             = "bridge"
	SENSOR_ID_TOTAL_DISCHARGE_ENERGY   = "total_discharge_energy"
	SENSOR_ID_TOTAL_CHARGE_ENERGY      = "total_charge_energy"
	SENSOR_ID_ENERGY_SINCE_LAST_CHARGE = "energy_since_last_charge"
	SENSOR_ID_ESTIMATED_CHARGE_TIME    = "estimated_charge_time"
	SENSOR_ID_CHARGE_STATUS            = "charge_status"
	SENSOR_ID_CHARGE_RATE              = "charge_rate"
	SENSOR_ID_STORED_ENERGY            = "stored_energy"
	SENSOR_ID_STORED_ENERGY_PERCENT    = "stored_energy_percent"
	SENSOR_ID_LAST_CHARGE_DURATION     = "last_charge_duration"
	SENSOR_ID_DIAGNOSTIC               = "diagnostic"
	SWITCH_ID_CHARGING                 = "charging"
	STATE_CLASS_MEASUREMENT            = "measurement"
	STATE_CLASS_TOTAL                  = "total"
	STATE_CLASS_TOTAL_INCREASING       = "total_increasing"
	DEVICE_CLASS_BATTERY               = "battery"
	DEVICE_CLASS_DURATION              = "duration"
	DEVICE_CLASS_ENERGY                = "energy"
	DEVICE_CLASS_ENERGY_STORAGE        = "energy_storage"
	DEVICE_CLASS_POWER                 = "power"
	DEVICE_CLASS_CONNECTIVITY          = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC            = "diagnostic"
	ENTITY_CLASS_CONFIG                = "config"
	SENSOR_TYPE_SENSOR                 = "sensor"
	SENSOR_TYPE_BINARY                 = "binary_sensor"
)

func BatteryStoredEnergySensorId(battery int) string {
	return fmt.Sprintf("battery_%d_stored_energy", battery)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("battracker_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Battracker",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Battracker %s", md5HashShort(baseTopic)),
	}
}

func TrackerDevice(baseTopic string, batteryCount int) Device {
	return Device{
		Id:           fmt.Sprintf("battracker_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        fmt.Sprintf("Battery energy tracker (%d batteries)", batteryCount),
		Version:      versioninfo.Short(),
		Name:         "Battery Energy Tracker",
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func TrackerSensors(trackerDevice Device, batteryCount int) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            trackerDevice,
		Id:                SENSOR_ID_TOTAL_DISCHARGE_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total discharge energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		Icon:              "mdi:battery-minus",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_TOTAL_DISCHARGE_ENERGY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_TOTAL_CHARGE_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total charge energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		Icon:              "mdi:battery-plus",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_TOTAL_CHARGE_ENERGY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_ENERGY_SINCE_LAST_CHARGE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy since last charge",
		StateClass:        STATE_CLASS_TOTAL,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		Icon:              "mdi:battery-arrow-down",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_ENERGY_SINCE_LAST_CHARGE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_ESTIMATED_CHARGE_TIME,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Estimated charge time",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "h",
		Icon:              "mdi:timer-outline",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_ESTIMATED_CHARGE_TIME),
	})

	sensors = append(sensors, GenericSensor{
		Device:     IdDevice(trackerDevice),
		Id:         SENSOR_ID_CHARGE_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Charge status",
		Icon:       "mdi:battery-charging",
		UniqueId:   uniqueId(trackerDevice.Id, SENSOR_ID_CHARGE_STATUS),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_CHARGE_RATE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Charge rate",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_CHARGE_RATE),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_STORED_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Stored energy",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_ENERGY_STORAGE,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_STORED_ENERGY),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_STORED_ENERGY_PERCENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Stored energy percent",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_STORED_ENERGY_PERCENT),
	})

	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(trackerDevice),
		Id:                SENSOR_ID_LAST_CHARGE_DURATION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Last charge duration",
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "h",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(trackerDevice.Id, SENSOR_ID_LAST_CHARGE_DURATION),
	})

	sensors = append(sensors, GenericSensor{
		Device:           IdDevice(trackerDevice),
		Id:               SENSOR_ID_DIAGNOSTIC,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Diagnostic",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:stethoscope",
		UniqueId:         uniqueId(trackerDevice.Id, SENSOR_ID_DIAGNOSTIC),
	})

	for n := 1; n <= batteryCount; n++ {
		id := BatteryStoredEnergySensorId(n)
		sensors = append(sensors, GenericSensor{
			Device:            IdDevice(trackerDevice),
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              fmt.Sprintf("Battery %d stored energy", n),
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_ENERGY_STORAGE,
			UnitOfMeasurement: "kWh",
			UniqueId:          uniqueId(trackerDevice.Id, id),
		})
	}

	return sensors
}

func TrackerSwitches(trackerDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// Manual charge state
	switches = append(switches, GenericSwitch{
		Device:   IdDevice(trackerDevice),
		Id:       SWITCH_ID_CHARGING,
		Name:     "Charging",
		UniqueId: uniqueId(trackerDevice.Id, SWITCH_ID_CHARGING),
		Icon:     "mdi:battery-charging-outline",
	})

	return switches
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
