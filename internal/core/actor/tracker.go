package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/events"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"github.com/berfenger/battracker2mqtt/internal/metrics"
	. "github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	SNAPSHOT_REQUEST_TIMEOUT = 6 * time.Second
	DEFAULT_READ_TIMEOUT     = 2 * time.Second
)

type TrackerActor struct {
	ActorWithStates
	scheduler     *scheduler.TimerScheduler
	stash         *Stash
	config        *config.Config
	tracker       port.EnergyTracker
	sensorsActor  *actor.PID
	snapshotActor *actor.PID
	mqttActor     *actor.PID

	entitiesSeen      bool
	lastReadError     error
	lastSnapshotSaved *time.Time
	cancelTick        scheduler.CancelFunc
	cancelSnapshot    scheduler.CancelFunc

	logger *zap.Logger
}

type trackerTick struct {
}

type snapshotTick struct {
}

// NewTrackerActor creates the coordinator. snapshotActor and mqttActor may be
// nil, disabling persistence and publishing.
func NewTrackerActor(config *config.Config, tracker port.EnergyTracker, sensorsActor, snapshotActor, mqttActor *actor.PID, logger *zap.Logger) *TrackerActor {
	act := &TrackerActor{
		config:        config,
		tracker:       tracker,
		sensorsActor:  sensorsActor,
		snapshotActor: snapshotActor,
		mqttActor:     mqttActor,
		stash:         &Stash{},
		logger:        ActorLogger(domain.ACTOR_ID_TRACKER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(TrackerStartingState{
		actor: act,
	})
	return act
}

func (state *TrackerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type TrackerStartingState struct {
	ActorState
	actor *TrackerActor
}

func (state TrackerStartingState) Name() string {
	return "starting"
}

func (state TrackerStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("tracker@starting started", zap.Strings("entities", state.actor.tracker.EntityIds()))
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)

		if state.actor.snapshotActor == nil {
			state.actor.enterIdle(ctx)
			return
		}
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.snapshotActor, domain.LoadSnapshotRequest{}, SNAPSHOT_REQUEST_TIMEOUT), func(err error) any {
			return domain.LoadSnapshotResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.actor.Become(TrackerRestoringState{
			actor: state.actor,
		})
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("tracker@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Restoring state

type TrackerRestoringState struct {
	ActorState
	actor *TrackerActor
}

func (state TrackerRestoringState) Name() string {
	return "restoring"
}

func (state TrackerRestoringState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.LoadSnapshotResponse:
		if msg.HasResponseError() {
			state.actor.logger.Warn("tracker@restoring could not load snapshot, starting fresh", zap.Error(msg.GetResponseError()))
		} else if msg.Snapshot != nil {
			state.actor.logger.Info("tracker@restoring snapshot restored", zap.Time("saved_at", msg.Snapshot.SavedAt))
			state.actor.tracker.Restore(*msg.Snapshot)
		}
		state.actor.enterIdle(ctx)
	default:
		state.actor.logger.Debug("tracker@restoring: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type TrackerIdleState struct {
	ActorState
	actor *TrackerActor
}

func (state TrackerIdleState) Name() string {
	return "idle"
}

func (state TrackerIdleState) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case trackerTick:
		state.actor.logger.Debug("tracker@idle tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.sensorsActor, domain.ReadSensorsRequest{
			EntityIds: state.actor.tracker.EntityIds(),
		}, state.actor.readTimeout()), func(err error) any {
			return domain.ReadSensorsResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
			}
		})
		state.actor.BecomeStacked(TrackerRefreshingState{
			actor: state.actor,
		})
	case snapshotTick:
		state.actor.logger.Debug("tracker@idle snapshot tick")
		state.actor.requestSnapshotSave(ctx)
		state.actor.scheduleSnapshot(ctx)
	default:
		state.actor.receiveCommon(ctx, state)
	}
}

// Refreshing state, waiting for the sensors actor

type TrackerRefreshingState struct {
	ActorState
	actor *TrackerActor
}

func (state TrackerRefreshingState) Name() string {
	return "refreshing"
}

func (state TrackerRefreshingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ReadSensorsResponse:
		if msg.HasResponseError() {
			state.actor.lastReadError = msg.GetResponseError()
			state.actor.logger.Error("tracker@refreshing sensor read failed, skipping cycle", zap.Error(msg.GetResponseError()))
		} else {
			state.actor.lastReadError = nil
			state.actor.refresh(ctx, msg.States)
		}
		state.actor.scheduleNextTick(ctx)
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		state.actor.respondHealth(ctx, state)
	case domain.FlushSnapshotRequest:
		state.actor.flushSnapshot(ctx, msg)
	case *actor.Stopping:
		state.actor.stop(ctx)
	default:
		state.actor.logger.Debug("tracker@refreshing: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// receiveCommon handles the messages every settled state answers.
func (a *TrackerActor) receiveCommon(ctx actor.Context, current ActorState) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		a.logger.Sugar().Debugf("tracker@%s: ActorHealthRequest", current.Name())
		a.respondHealth(ctx, current)
	case domain.ServiceRequest:
		a.logger.Sugar().Debugf("tracker@%s: service %s", current.Name(), msg.ServiceName())
		err := a.tracker.Apply(msg)
		metrics.IncServiceCall(msg.ServiceName(), err)
		resp := domain.ServiceResponse{
			Service: msg.ServiceName(),
		}
		if err != nil {
			a.logger.Warn("tracker@"+current.Name()+" service rejected", zap.String("service", msg.ServiceName()), zap.Error(err))
			resp.ActorResponseMixIn = domain.ErrorResponse(err)
		} else {
			summary := a.tracker.Summary()
			resp.Summary = summary
			metrics.ObserveSummary(summary)
			a.publish(ctx, summary)
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetTrackerStateRequest:
		ForRequest(msg).Respond(ctx, domain.GetTrackerStateResponse{
			Summary: a.tracker.Summary(),
		})
	case domain.GetDiagnosticsRequest:
		d := a.tracker.Diagnostics()
		d.LastSnapshotSaved = a.lastSnapshotSaved
		ForRequest(msg).Respond(ctx, domain.GetDiagnosticsResponse{
			Diagnostics: d,
		})
	case domain.SaveSnapshotResponse:
		if msg.HasResponseError() {
			a.logger.Error("tracker@"+current.Name()+" snapshot save failed", zap.Error(msg.GetResponseError()))
			return
		}
		now := time.Now()
		a.lastSnapshotSaved = &now
	case domain.FlushSnapshotRequest:
		a.flushSnapshot(ctx, msg)
	case *actor.Stopping:
		a.stop(ctx)
	default:
		a.logger.Debug("tracker@"+current.Name()+": recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (a *TrackerActor) respondHealth(ctx actor.Context, current ActorState) {
	status := current.Name()
	if a.lastReadError != nil {
		status = fmt.Sprintf("%s, last read failed: %s", status, a.lastReadError)
	}
	ctx.Respond(domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_TRACKER,
		Healthy: true,
		State:   status,
	})
}

func (a *TrackerActor) enterIdle(ctx actor.Context) {
	delay := time.Duration(a.config.Tracker.StartupDelaySeconds) * time.Second
	a.cancelTick = a.scheduler.RequestOnce(delay, ctx.Self(), trackerTick{})
	a.scheduleSnapshot(ctx)
	a.Become(TrackerIdleState{
		actor: a,
	})
	a.publish(ctx, a.tracker.Summary())
	a.stash.UnstashAll(ctx)
}

func (a *TrackerActor) refresh(ctx actor.Context, states map[string]string) {
	result := a.tracker.Refresh(states)
	summary := a.tracker.Summary()
	metrics.ObserveRefresh(result, summary)
	if result.Rollovers > 0 {
		a.logger.Info("tracker@refreshing counter rollover", zap.Int("rollovers", result.Rollovers))
	}
	if len(result.Skipped) > 0 {
		a.logger.Debug("tracker@refreshing skipped entities", zap.Strings("entities", result.Skipped))
	}
	if result.ChargingChanged {
		a.logger.Info("tracker@refreshing charging state changed", zap.Bool("charging", summary.IsCharging))
	}
	a.publish(ctx, summary)
}

// scheduleNextTick uses the retry interval while no configured entity was
// ever available, up to the configured retry count.
func (a *TrackerActor) scheduleNextTick(ctx actor.Context) {
	interval := time.Duration(a.config.Tracker.UpdateIntervalSeconds) * time.Second
	if !a.entitiesSeen {
		maxRetries := a.config.Tracker.EntityRetryCount
		switch {
		case a.tracker.EntitiesAvailable():
			a.entitiesSeen = true
		case a.config.Tracker.EntityRetryIntervalSeconds == 0:
		case a.tracker.RetryCount() < maxRetries:
			retry := a.tracker.IncrementRetry()
			a.logger.Warn("tracker@refreshing no entity available yet, retrying",
				zap.Uint("retry", retry), zap.Uint("max", maxRetries), zap.Error(domain.ErrEntitiesNotLoaded))
			interval = time.Duration(a.config.Tracker.EntityRetryIntervalSeconds) * time.Second
		}
	}
	a.cancelTick = a.scheduler.RequestOnce(interval, ctx.Self(), trackerTick{})
}

func (a *TrackerActor) scheduleSnapshot(ctx actor.Context) {
	if a.snapshotActor == nil || a.config.Storage.SnapshotIntervalSeconds == 0 {
		return
	}
	a.cancelSnapshot = a.scheduler.RequestOnce(time.Duration(a.config.Storage.SnapshotIntervalSeconds)*time.Second, ctx.Self(), snapshotTick{})
}

func (a *TrackerActor) requestSnapshotSave(ctx actor.Context) {
	if a.snapshotActor == nil {
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.snapshotActor, domain.SaveSnapshotRequest{
		Snapshot: a.tracker.Snapshot(),
	}, SNAPSHOT_REQUEST_TIMEOUT), func(err error) any {
		return domain.SaveSnapshotResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
}

// flushSnapshot has the snapshot actor answer the requester directly.
func (a *TrackerActor) flushSnapshot(ctx actor.Context, msg domain.FlushSnapshotRequest) {
	replyTo := ForRequest(msg).ReplyTo(ctx)
	if a.snapshotActor == nil {
		ForRequest(msg).Respond(ctx, domain.SaveSnapshotResponse{})
		return
	}
	a.logger.Debug("tracker@flush saving snapshot")
	ctx.Send(a.snapshotActor, domain.SaveSnapshotRequest{
		ActorRequestMixIn: domain.ActorRequestMixIn{
			ReplyToRef: domain.RefOf(replyTo),
		},
		Snapshot: a.tracker.Snapshot(),
	})
}

func (a *TrackerActor) publish(ctx actor.Context, summary domain.TrackerSummary) {
	if a.mqttActor == nil {
		return
	}
	evs := events.TrackerSummaryToUpdateEvents(summary)
	evs = append(evs, events.DiagnosticUpdateEvent(a.tracker.Diagnostics()))
	for _, ev := range evs {
		if sev, ok := ev.(domain.SensorUpdateEvent); ok {
			ctx.Send(a.mqttActor, domain.PublishSensorUpdateRequest{
				Event: sev,
			})
		}
	}
}

func (a *TrackerActor) stop(ctx actor.Context) {
	a.logger.Debug("tracker@stopping")
	if a.cancelTick != nil {
		a.cancelTick()
	}
	if a.cancelSnapshot != nil {
		a.cancelSnapshot()
	}
}

func (a *TrackerActor) readTimeout() time.Duration {
	if a.config.Source.ReadTimeoutMillis == 0 {
		return DEFAULT_READ_TIMEOUT + time.Second
	}
	return time.Duration(a.config.Source.ReadTimeoutMillis)*time.Millisecond + time.Second
}
