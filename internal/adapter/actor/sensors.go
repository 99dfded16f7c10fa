package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const DEFAULT_SENSOR_READ_TIMEOUT = 2 * time.Second

type SensorsActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	reader      port.SensorReader
	readTimeout time.Duration
	reads       uint64
	failures    uint64
	logger      *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewSensorsActor(reader port.SensorReader, readTimeout time.Duration, logger *zap.Logger) *SensorsActor {
	if readTimeout <= 0 {
		readTimeout = DEFAULT_SENSOR_READ_TIMEOUT
	}
	act := &SensorsActor{
		reader:      reader,
		readTimeout: readTimeout,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_SENSORS, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SensorsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SensorsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("sensors@starting started")
		if err := state.reader.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.reader.Close()
	default:
		state.logger.Debug("sensors@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SensorsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("sensors@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SENSORS,
			Healthy: true,
			State:   fmt.Sprintf("reads=%d failures=%d", state.reads, state.failures),
		})
	case domain.ReadSensorsRequest:
		state.logger.Debug("sensors@default: ReadSensorsRequest", zap.Int("entities", len(msg.EntityIds)))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		entityIds := msg.EntityIds

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.ReadSensorsResponse, error) {
			return state.readSensors(entityIds)
		}), mapTaskResult[domain.ReadSensorsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadSensorsResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout + 500*time.Millisecond).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingSource)
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("sensors@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SensorsActor) WaitingSource(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("sensors@WaitingSource backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		state.reads++
		if resp, ok := msg.message.(domain.ReadSensorsResponse); ok && resp.HasResponseError() {
			state.failures++
			state.logger.Warn("sensors@WaitingSource read failed", zap.Error(resp.GetResponseError()))
		}
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.reader.Close()
	default:
		state.logger.Debug("sensors@WaitingSource stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *SensorsActor) readSensors(entityIds []string) (*domain.ReadSensorsResponse, error) {
	readCtx, cancel := context.WithTimeout(context.Background(), state.readTimeout)
	defer cancel()
	states, err := state.reader.Read(readCtx, entityIds)
	if err != nil {
		return nil, err
	}
	return &domain.ReadSensorsResponse{States: states}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
