package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "github.com/berfenger/battracker2mqtt/internal/adapter/actor"
	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/service"
	"github.com/berfenger/battracker2mqtt/internal/mqtt"
	. "github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

type SensorsActorProvider func() *adactor.SensorsActor

type SnapshotActorProvider func() *adactor.SnapshotActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck    healthCheckResult
	sensorsActor          *actor.PID
	mqttActor             *actor.PID
	snapshotActor         *actor.PID
	trackerActor          *actor.PID
	sensorsActorProvider  SensorsActorProvider
	snapshotActorProvider SnapshotActorProvider
	mqttActorProvider     MQTTActorProvider
	stopping              bool
	logger                *zap.Logger
}

var healthCheckedActors = []string{
	domain.ACTOR_ID_SENSORS,
	domain.ACTOR_ID_MQTT,
	domain.ACTOR_ID_SNAPSHOT,
	domain.ACTOR_ID_TRACKER,
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, sensorsActorProvider SensorsActorProvider, snapshotActorProvider SnapshotActorProvider,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:                config,
		behavior:              actor.NewBehavior(),
		stash:                 &Stash{},
		logger:                ActorLogger(domain.ACTOR_ID_MASTER, logger),
		sensorsActorProvider:  sensorsActorProvider,
		snapshotActorProvider: snapshotActorProvider,
		mqttActorProvider:     mqttActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	if _, ok := context.Message().(*actor.Stopping); ok {
		// children are still running at this point
		state.stopping = true
		state.flushSnapshot(context)
	}
	state.behavior.Receive(context)
}

// flushSnapshot blocks until the tracker state is stored, so it is not lost
// when the tracker and snapshot actors stop together.
func (state *MasterOfPuppetsActor) flushSnapshot(ctx actor.Context) {
	if state.trackerActor == nil {
		return
	}
	res, err := ctx.RequestFuture(state.trackerActor, domain.FlushSnapshotRequest{}, SNAPSHOT_REQUEST_TIMEOUT).Result()
	if err != nil {
		state.logger.Error("master@stopping snapshot flush failed", zap.Error(err))
		return
	}
	if resp, ok := res.(domain.SaveSnapshotResponse); ok && resp.HasResponseError() {
		state.logger.Error("master@stopping snapshot flush failed", zap.Error(resp.GetResponseError()))
		return
	}
	state.logger.Info("master@stopping snapshot saved")
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startIOActor(ctx, domain.ACTOR_ID_MQTT, func() actor.Actor {
			return state.mqttActorProvider()
		})
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Sensors child
		sensorsActorPID, err := state.startIOActor(ctx, domain.ACTOR_ID_SENSORS, func() actor.Actor {
			return state.sensorsActorProvider()
		})
		if err != nil {
			panic(err)
		}
		state.sensorsActor = sensorsActorPID

		// start Snapshot child
		snapshotActorPID, err := state.startIOActor(ctx, domain.ACTOR_ID_SNAPSHOT, func() actor.Actor {
			return state.snapshotActorProvider()
		})
		if err != nil {
			panic(err)
		}
		state.snapshotActor = snapshotActorPID

		// start Tracker child
		trackerActorPID, err := state.startTrackerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.trackerActor = trackerActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		for _, id := range healthCheckedActors {
			id := id
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.child(id), domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.ParsedCommand:
		// route MQTT commands to the tracker
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		req, err := ParsedMQTTCommandToServiceRequest(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default invalid command", zap.Any("command", msg.Command), zap.Error(err))
			ctx.Send(state.mqttActor, domain.ServiceResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Service:            commandServiceName(*msg.Command),
			})
			return
		}
		ctx.Request(state.trackerActor, req)
	case domain.ServiceResponse:
		// result of a service called through MQTT
		ctx.Send(state.mqttActor, msg)
	case domain.ServiceRequest, domain.GetTrackerStateRequest, domain.GetDiagnosticsRequest:
		// requests from the HTTP API keep their original sender
		ctx.Forward(state.trackerActor)
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if !state.stopping && msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_SENSORS) {
			state.logger.Error("master@default sensors error")
			panic(errors.New("sensors terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) child(id string) *actor.PID {
	switch id {
	case domain.ACTOR_ID_SENSORS:
		return state.sensorsActor
	case domain.ACTOR_ID_MQTT:
		return state.mqttActor
	case domain.ACTOR_ID_SNAPSHOT:
		return state.snapshotActor
	case domain.ACTOR_ID_TRACKER:
		return state.trackerActor
	}
	return nil
}

// startIOActor spawns an actor owning an external connection. Those are
// restarted with exponential backoff.
func (state *MasterOfPuppetsActor) startIOActor(ctx actor.Context, id string, producer actor.Producer) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	props := actor.PropsFromProducer(producer, actor.WithSupervisor(supervisor))
	pid, err := ctx.SpawnNamed(props, id)
	if err != nil {
		return nil, err
	}

	return pid, nil
}

func (state *MasterOfPuppetsActor) startTrackerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(3, 10*time.Second, decider)

	trackerProps := actor.PropsFromProducer(func() actor.Actor {
		tracker := service.NewEnergyTracker(state.config.Tracker, state.logger)
		return NewTrackerActor(&state.config, tracker, state.sensorsActor, state.snapshotActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	trackerActorPID, err := ctx.SpawnNamed(trackerProps, domain.ACTOR_ID_TRACKER)
	if err != nil {
		return nil, err
	}

	return trackerActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.trackerActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func commandServiceName(cmd mqtt.ParsedMQTTCommand) string {
	if cmd.Command == mqtt.COMMAND_SWITCH {
		return domain.SERVICE_SET_CHARGE_STATE
	}
	return cmd.DeviceId
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == len(healthCheckedActors)
}

func (state *healthCheckResult) allHealthy() bool {
	for _, id := range healthCheckedActors {
		if !state.healthy[id] {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
