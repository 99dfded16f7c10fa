package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	SNAPSHOT_STORE_TIMEOUT = 5 * time.Second
	SNAPSHOT_CLOSE_TIMEOUT = 10 * time.Second
)

// SnapshotActor serializes access to the snapshot store so a slow backend
// never blocks the tracker.
type SnapshotActor struct {
	behavior     actor.Behavior
	stash        *actorutil.Stash
	store        port.SnapshotStore
	storeTimeout time.Duration
	closeTimeout time.Duration
	pending      sync.WaitGroup // store calls in flight, timed out ones included
	lastSaved    *time.Time
	logger       *zap.Logger
}

func NewSnapshotActor(store port.SnapshotStore, logger *zap.Logger) *SnapshotActor {
	act := &SnapshotActor{
		store:        store,
		storeTimeout: SNAPSHOT_STORE_TIMEOUT,
		closeTimeout: SNAPSHOT_CLOSE_TIMEOUT,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(domain.ACTOR_ID_SNAPSHOT, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *SnapshotActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SnapshotActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("snapshot@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("snapshot@default: ActorHealthRequest")
		status := "never saved"
		if state.lastSaved != nil {
			status = "saved " + state.lastSaved.Format(time.RFC3339)
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SNAPSHOT,
			Healthy: true,
			State:   status,
		})
	case domain.SaveSnapshotRequest:
		state.logger.Debug("snapshot@default: SaveSnapshotRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		snapshot := msg.Snapshot

		state.pending.Add(1)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.SaveSnapshotResponse, error) {
			defer state.pending.Done()
			return state.save(snapshot)
		}), mapTaskResult[domain.SaveSnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SaveSnapshotResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.storeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingStore)
	case domain.LoadSnapshotRequest:
		state.logger.Debug("snapshot@default: LoadSnapshotRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		state.pending.Add(1)
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, func() (*domain.LoadSnapshotResponse, error) {
			defer state.pending.Done()
			return state.load()
		}), mapTaskResult[domain.LoadSnapshotResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.LoadSnapshotResponse{
					ActorResponseMixIn: domain.ErrorResponse(err),
				},
				replyTo: sender,
			}
		}).WithTimeout(state.storeTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingStore)
	case *actor.Stopping:
		state.closeStore()
	default:
		state.logger.Debug("snapshot@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SnapshotActor) WaitingStore(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("snapshot@WaitingStore backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if resp, ok := msg.message.(domain.SaveSnapshotResponse); ok {
			if resp.HasResponseError() {
				state.logger.Error("snapshot@WaitingStore save failed", zap.Error(resp.GetResponseError()))
			} else {
				now := time.Now()
				state.lastSaved = &now
			}
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.closeStore()
	default:
		state.logger.Debug("snapshot@WaitingStore stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// closeStore waits for store calls still in flight before closing it.
func (state *SnapshotActor) closeStore() {
	done := make(chan struct{})
	go func() {
		state.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(state.closeTimeout):
		state.logger.Warn("snapshot@stopping store still busy, closing anyway")
	}
	if err := state.store.Close(); err != nil {
		state.logger.Error("snapshot@stopping close error", zap.Error(err))
	}
}

func (state *SnapshotActor) save(snapshot domain.TrackerSnapshot) (*domain.SaveSnapshotResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), state.storeTimeout)
	defer cancel()
	if err := state.store.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	return &domain.SaveSnapshotResponse{}, nil
}

func (state *SnapshotActor) load() (*domain.LoadSnapshotResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), state.storeTimeout)
	defer cancel()
	snapshot, err := state.store.Load(ctx)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		state.logger.Info("snapshot@load no snapshot stored, starting fresh")
		return &domain.LoadSnapshotResponse{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.LoadSnapshotResponse{Snapshot: snapshot}, nil
}
