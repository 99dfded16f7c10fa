package actorutil

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/lmittmann/tint"
	"go.uber.org/zap"
)

func PipeToSelfWithRecover(ctx actor.Context, future *actor.Future, mapFn func(error) any) {
	ctx.ReenterAfter(future, func(msg any, err error) {
		if err != nil {
			ctx.Send(ctx.Self(), mapFn(err))
			return
		}
		ctx.Send(ctx.Self(), msg)
	})
}

func NewActorSystemWithZapLogger(logger *zap.Logger) *actor.ActorSystem {
	stdOutLogger := zap.NewStdLog(logger)

	var slogLevel slog.Level = slog.LevelInfo

	switch logger.Level() {
	case zap.DebugLevel:
		slogLevel = slog.LevelDebug
	case zap.InfoLevel:
		slogLevel = slog.LevelInfo
	case zap.WarnLevel:
		slogLevel = slog.LevelWarn
	case zap.ErrorLevel:
		slogLevel = slog.LevelError
	case zap.PanicLevel:
		slogLevel = slog.LevelError
	}

	return actor.NewActorSystem(actor.WithLoggerFactory(func(system *actor.ActorSystem) *slog.Logger {

		// create a new logger
		return slog.New(tint.NewHandler(stdOutLogger.Writer(), &tint.Options{
			Level:      slogLevel,
			TimeFormat: time.DateTime,
		}))
	}))
}

func ActorLogger(actorName string, logger *zap.Logger) *zap.Logger {
	return logger.With(zap.String("actor", actorName))
}

// ParsedMQTTCommandToServiceRequest maps an MQTT command to the tracker
// service it triggers. The charging switch maps to set_charge_state.
func ParsedMQTTCommandToServiceRequest(cmd mqtt.ParsedMQTTCommand) (domain.ServiceRequest, error) {
	switch cmd.Command {
	case mqtt.COMMAND_SWITCH:
		if cmd.DeviceId != domain.SWITCH_ID_CHARGING {
			return nil, fmt.Errorf("%w: switch %s", domain.ErrUnknownService, cmd.DeviceId)
		}
		switch strings.ToLower(cmd.Payload) {
		case mqtt.MQTT_PAYLOAD_ON:
			return domain.SetChargeStateRequest{IsCharging: true}, nil
		case mqtt.MQTT_PAYLOAD_OFF:
			return domain.SetChargeStateRequest{IsCharging: false}, nil
		}
		return nil, domain.NewValidationError("payload", "switch payload must be on or off, got %q", cmd.Payload)
	case mqtt.COMMAND_SERVICE:
		return domain.ParseServiceCall(cmd.DeviceId, []byte(cmd.Payload))
	}
	return nil, fmt.Errorf("unsupported MQTT command %s", cmd.Command)
}
