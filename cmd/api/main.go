package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/battracker2mqtt/internal/adapter/actor"
	"github.com/berfenger/battracker2mqtt/internal/adapter/modbus"
	"github.com/berfenger/battracker2mqtt/internal/adapter/statestream"
	"github.com/berfenger/battracker2mqtt/internal/adapter/store"
	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/actor"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"github.com/berfenger/battracker2mqtt/internal/core/service"
	"github.com/berfenger/battracker2mqtt/internal/metrics"
	"github.com/berfenger/battracker2mqtt/internal/server"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"
	"github.com/berfenger/battracker2mqtt/pkg/counter_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	metrics.Init()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// sensor source, the statestream cache is fed by the MQTT actor
	var cache *statestream.Cache
	if cfg.Source.Type == config.SOURCE_TYPE_MQTT {
		cache = statestream.NewCache(0)
	}
	sensorsProv, err := sensorsActorProvider(cfg, cache, logger)
	if err != nil {
		panic(err)
	}

	snapshotProv, err := snapshotActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, sensorsProv, snapshotProv, mqttActorProvider(cfg, cache, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	// stopping the master stops the tracker, which saves a last snapshot
	if err := ctx.StopFuture(pid).Wait(); err != nil {
		log.Printf("master stop: %v", err)
	}
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => BATTRACKER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BATTRACKER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("battracker")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check and fix statestream topic
	statestreamTopic, err := config.CheckMQTTTopic(cfg.Source.StatestreamTopic)
	if err != nil {
		return nil, errors.New("invalid statestream topic. can only contain letters, numbers and underscores")
	}
	cfg.Source.StatestreamTopic = statestreamTopic

	// check bounds
	if err := config.CheckTrackerBounds(cfg.Tracker); err != nil {
		return nil, err
	}
	if err := config.CheckSourceAndStorage(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func sensorsActorProvider(cfg *config.Config, cache *statestream.Cache, logger *zap.Logger) (actor.SensorsActorProvider, error) {

	var reader port.SensorReader
	switch cfg.Source.Type {
	case config.SOURCE_TYPE_MQTT:
		reader = cache
	case config.SOURCE_TYPE_MODBUS:
		battery, err := counter_modbus.CreateBatteryCounterModbusReader(cfg.Modbus.Host, cfg.Modbus.Port,
			uint8(cfg.Modbus.UnitId), time.Duration(cfg.Modbus.TimeoutMillis)*time.Millisecond,
			modbus.LayoutFromConfig(cfg.Modbus), logger, nil)
		if err != nil {
			return nil, err
		}
		reader = modbus.NewSensorReader(battery, service.DetectEntities(cfg.Tracker))
	case config.SOURCE_TYPE_TEST:
		battery, err := counter_modbus.CreateTestBatteryModbusReader()
		if err != nil {
			return nil, err
		}
		reader = modbus.NewSensorReader(battery, service.DetectEntities(cfg.Tracker))
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}

	readTimeout := time.Duration(cfg.Source.ReadTimeoutMillis) * time.Millisecond
	return func() *adactor.SensorsActor {
		return adactor.NewSensorsActor(reader, readTimeout, logger)
	}, nil
}

func snapshotActorProvider(cfg *config.Config, logger *zap.Logger) (actor.SnapshotActorProvider, error) {

	var snapshotStore port.SnapshotStore
	switch cfg.Storage.Driver {
	case config.STORAGE_DRIVER_MEMORY:
		snapshotStore = store.NewMemoryStore()
	case config.STORAGE_DRIVER_REDIS:
		client, err := store.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		snapshotStore = store.NewRedisStore(client, cfg.Storage.Key)
	case config.STORAGE_DRIVER_POSTGRES:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pool, err := store.NewPostgresPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		pgStore, err := store.NewPostgresStore(ctx, pool, cfg.Storage.Key)
		if err != nil {
			pool.Close()
			return nil, err
		}
		snapshotStore = pgStore
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	return func() *adactor.SnapshotActor {
		return adactor.NewSnapshotActor(snapshotStore, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, cache *statestream.Cache, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		if cache == nil {
			return adactor.NewMQTTActor(cfg, nil, logger)
		}
		return adactor.NewMQTTActor(cfg, cache, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "battracker")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("tracker.battery_count", 1)
	viper.SetDefault("tracker.charge_rate", 1500)
	viper.SetDefault("tracker.scale_factor", 0.1)
	viper.SetDefault("tracker.max_counter_value", 65535)
	viper.SetDefault("tracker.counter_threshold", 65000)
	viper.SetDefault("tracker.update_interval_seconds", 60)
	viper.SetDefault("tracker.startup_delay_seconds", 0)
	viper.SetDefault("tracker.battery_capacity_kwh", 5.12)
	viper.SetDefault("tracker.charging_current_threshold", 0.5)
	viper.SetDefault("tracker.entity_retry_count", 10)
	viper.SetDefault("tracker.entity_retry_interval_seconds", 30)
	viper.SetDefault("source.type", config.SOURCE_TYPE_MQTT)
	viper.SetDefault("source.statestream_topic", "homeassistant_statestream")
	viper.SetDefault("source.read_timeout_millis", 2000)
	viper.SetDefault("modbus.port", 502)
	viper.SetDefault("modbus.unit_id", 1)
	viper.SetDefault("modbus.timeout_millis", 1000)
	viper.SetDefault("modbus.current_scale", 0.01)
	viper.SetDefault("modbus.voltage_scale", 0.01)
	viper.SetDefault("storage.driver", config.STORAGE_DRIVER_MEMORY)
	viper.SetDefault("storage.key", "battracker")
	viper.SetDefault("storage.snapshot_interval_seconds", 300)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Redis.Password = "*redacted*"
	cfg.Postgres.DSN = "*redacted*"
	slog.Info("Using", "config", cfg)
}
