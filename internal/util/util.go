package util

import (
	"github.com/berfenger/battracker2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Tracker: config.TrackerConfig{
			BatteryCount:               2,
			ChargeRate:                 1500,
			ScaleFactor:                0.1,
			MaxCounterValue:            65535,
			CounterThreshold:           65000,
			UpdateIntervalSeconds:      5,
			BatteryCapacityKWh:         5.12,
			ChargingCurrentThreshold:   0.5,
			EntityRetryCount:           3,
			EntityRetryIntervalSeconds: 1,
		},
		Source: config.SourceConfig{
			Type:              config.SOURCE_TYPE_TEST,
			StatestreamTopic:  "homeassistant_statestream",
			ReadTimeoutMillis: 1000,
		},
		Modbus: config.ModbusConfig{
			Host:           "-.-.-.-",
			Port:           502,
			UnitId:         1,
			RegisterStride: 8,
			ChargeOffset:   1,
			CurrentOffset:  2,
			VoltageOffset:  3,
			CurrentScale:   0.1,
			VoltageScale:   0.1,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "battracker",
		},
		Storage: config.StorageConfig{
			Driver:                  config.STORAGE_DRIVER_MEMORY,
			Key:                     "battracker",
			SnapshotIntervalSeconds: 300,
		},
		Port: 8080,
	}
}
