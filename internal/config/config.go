package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

const (
	SOURCE_TYPE_MQTT   = "mqtt"
	SOURCE_TYPE_MODBUS = "modbus"
	SOURCE_TYPE_TEST   = "test"

	STORAGE_DRIVER_MEMORY   = "memory"
	STORAGE_DRIVER_REDIS    = "redis"
	STORAGE_DRIVER_POSTGRES = "postgres"
)

type Config struct {
	LogLevel zapcore.Level
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Source   SourceConfig   `mapstructure:"source"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type TrackerConfig struct {
	BatteryCount               uint                `mapstructure:"battery_count"`
	ChargeRate                 float64             `mapstructure:"charge_rate"`
	EntityPatterns             map[string]string   `mapstructure:"entity_patterns"`
	ScaleFactor                float64             `mapstructure:"scale_factor"`
	ManualEntities             map[string][]string `mapstructure:"manual_entities"`
	MaxCounterValue            float64             `mapstructure:"max_counter_value"`
	CounterThreshold           float64             `mapstructure:"counter_threshold"`
	UpdateIntervalSeconds      uint32              `mapstructure:"update_interval_seconds"`
	StartupDelaySeconds        uint32              `mapstructure:"startup_delay_seconds"`
	BatteryCapacityKWh         float64             `mapstructure:"battery_capacity_kwh"`
	ChargingCurrentThreshold   float64             `mapstructure:"charging_current_threshold"`
	EntityRetryCount           uint                `mapstructure:"entity_retry_count"`
	EntityRetryIntervalSeconds uint32              `mapstructure:"entity_retry_interval_seconds"`
}

type SourceConfig struct {
	Type              string `mapstructure:"type"`
	StatestreamTopic  string `mapstructure:"statestream_topic"`
	ReadTimeoutMillis uint32 `mapstructure:"read_timeout_millis"`
}

// ModbusConfig describes where the raw battery registers live. Battery n uses
// RegisterBase + (n-1)*RegisterStride plus the per-value offset.
type ModbusConfig struct {
	Host            string
	Port            uint
	UnitId          uint    `mapstructure:"unit_id"`
	TimeoutMillis   uint32  `mapstructure:"timeout_millis"`
	RegisterBase    uint16  `mapstructure:"register_base"`
	RegisterStride  uint16  `mapstructure:"register_stride"`
	DischargeOffset uint16  `mapstructure:"discharge_offset"`
	ChargeOffset    uint16  `mapstructure:"charge_offset"`
	CurrentOffset   uint16  `mapstructure:"current_offset"`
	VoltageOffset   uint16  `mapstructure:"voltage_offset"`
	CurrentScale    float64 `mapstructure:"current_scale"`
	VoltageScale    float64 `mapstructure:"voltage_scale"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type StorageConfig struct {
	Driver                  string `mapstructure:"driver"`
	Key                     string `mapstructure:"key"`
	SnapshotIntervalSeconds uint32 `mapstructure:"snapshot_interval_seconds"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// CheckTrackerBounds validates the tracker section against the accepted ranges.
func CheckTrackerBounds(cfg TrackerConfig) error {
	if cfg.BatteryCount < 1 || cfg.BatteryCount > 16 {
		return errors.New("config param tracker.battery_count should be between 1 and 16")
	}
	if cfg.ChargeRate < 100 || cfg.ChargeRate > 10000 {
		return errors.New("config param tracker.charge_rate should be between 100 and 10000")
	}
	if cfg.ScaleFactor < 0.001 || cfg.ScaleFactor > 10 {
		return errors.New("config param tracker.scale_factor should be between 0.001 and 10")
	}
	if cfg.StartupDelaySeconds > 300 {
		return errors.New("config param tracker.startup_delay_seconds should be <= 300")
	}
	if cfg.UpdateIntervalSeconds < 5 {
		return errors.New("config param tracker.update_interval_seconds should be >= 5")
	}
	if cfg.MaxCounterValue <= 0 {
		return errors.New("config param tracker.max_counter_value should be > 0")
	}
	if cfg.CounterThreshold <= 0 || cfg.CounterThreshold >= cfg.MaxCounterValue {
		return errors.New("config param tracker.counter_threshold must be > 0 and < tracker.max_counter_value")
	}
	if cfg.BatteryCapacityKWh <= 0 {
		return errors.New("config param tracker.battery_capacity_kwh should be > 0")
	}
	for kind, pattern := range cfg.EntityPatterns {
		if pattern != "" && !strings.Contains(pattern, "{}") {
			return fmt.Errorf("config param tracker.entity_patterns.%s must contain a {} placeholder", kind)
		}
	}
	for kind, entities := range cfg.ManualEntities {
		if len(entities) > int(cfg.BatteryCount) {
			return fmt.Errorf("config param tracker.manual_entities.%s lists more entities than tracker.battery_count", kind)
		}
	}
	return nil
}

func CheckSourceAndStorage(cfg Config) error {
	switch cfg.Source.Type {
	case SOURCE_TYPE_MQTT, SOURCE_TYPE_TEST:
	case SOURCE_TYPE_MODBUS:
		if cfg.Modbus.Host == "" {
			return errors.New("config param modbus.host is required when source.type is modbus")
		}
		if cfg.Modbus.RegisterStride == 0 && cfg.Tracker.BatteryCount > 1 {
			return errors.New("config param modbus.register_stride should be > 0 for more than one battery")
		}
	default:
		return fmt.Errorf("unknown source.type %q", cfg.Source.Type)
	}
	switch cfg.Storage.Driver {
	case STORAGE_DRIVER_MEMORY:
	case STORAGE_DRIVER_REDIS:
		if cfg.Redis.Addr == "" {
			return errors.New("config param redis.addr is required when storage.driver is redis")
		}
	case STORAGE_DRIVER_POSTGRES:
		if cfg.Postgres.DSN == "" {
			return errors.New("config param postgres.dsn is required when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}
	return nil
}
