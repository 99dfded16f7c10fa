package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/adapter/statestream"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type brokenReader struct {
	*statestream.Cache
}

func (r *brokenReader) Read(ctx context.Context, entityIds []string) (map[string]string, error) {
	return nil, errors.New("source offline")
}

type slowReader struct {
	*statestream.Cache
}

func (r *slowReader) Read(ctx context.Context, entityIds []string) (map[string]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSensorsActorReadsCache(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	cache := statestream.NewCache(time.Minute)
	cache.Put("sensor.b1_out", "120")
	cache.Put("sensor.b1_in", "unavailable")

	props := actor.PropsFromProducer(func() actor.Actor { return NewSensorsActor(cache, time.Second, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSensorsRequest{
		EntityIds: []string{"sensor.b1_out", "sensor.b1_in", "sensor.b2_out"},
	}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ReadSensorsResponse)
	assert.True(ok)
	assert.False(resp.HasResponseError())
	assert.Equal("120", resp.States["sensor.b1_out"])
	assert.NotContains(resp.States, "sensor.b2_out")

	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	health := result.(domain.ActorHealthResponse)
	assert.True(health.Healthy)
	assert.Equal(domain.ACTOR_ID_SENSORS, health.Id)
	assert.Equal("reads=1 failures=0", health.State)

	context.Stop(pid)

	as.Shutdown()
}

func TestSensorsActorReportsReadErrors(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSensorsActor(&brokenReader{Cache: statestream.NewCache(time.Minute)}, time.Second, logger)
	})
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSensorsRequest{EntityIds: []string{"sensor.b1_out"}}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadSensorsResponse)
	assert.True(resp.HasResponseError())
	assert.EqualError(resp.GetResponseError(), "source offline")

	// the actor keeps serving after a failure
	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(err)
	assert.Equal("reads=1 failures=1", result.(domain.ActorHealthResponse).State)

	context.Stop(pid)

	as.Shutdown()
}

func TestSensorsActorReadTimeout(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSensorsActor(&slowReader{Cache: statestream.NewCache(time.Minute)}, 200*time.Millisecond, logger)
	})
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.ReadSensorsRequest{EntityIds: []string{"sensor.b1_out"}}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadSensorsResponse)
	assert.True(resp.HasResponseError())

	context.Stop(pid)

	as.Shutdown()
}
