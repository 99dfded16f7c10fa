package actor

import (
	"testing"
	"time"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/util"
	"github.com/berfenger/battracker2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDiscoveryEntities(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	sensors, switches := DiscoveryEntities(&cfg)

	// bridge + 10 tracker sensors + one per battery
	assert.Len(sensors, 13)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)
	assert.Equal(sensors[0].Device.Id, sensors[1].Device.ViaDevice)
	assert.Equal(domain.BatteryStoredEnergySensorId(2), sensors[12].Id)

	assert.Len(switches, 1)
	assert.Equal(domain.SWITCH_ID_CHARGING, switches[0].Id)
}

func TestHADiscoveryActorPublishes(t *testing.T) {
	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	root := as.Root

	cfg := util.LoadTestConfig()

	healthy := func(id string) actor.ReceiveFunc {
		return func(ctx actor.Context) {
			if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
				ctx.Respond(domain.ActorHealthResponse{Id: id, Healthy: true})
			}
		}
	}
	published := make(chan domain.PublishDiscoveryRequest, 1)
	trackerPID := root.Spawn(actor.PropsFromFunc(healthy(domain.ACTOR_ID_TRACKER)))
	mqttPID := root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.PublishDiscoveryRequest:
			published <- msg
		default:
			healthy(domain.ACTOR_ID_MQTT)(ctx)
		}
	}))

	root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&cfg, trackerPID, mqttPID, logger)
	}))

	select {
	case msg := <-published:
		assert.Len(msg.Sensors, 13)
		assert.Len(msg.Switches, 1)
	case <-time.After(3 * time.Second):
		t.Error("discovery was not published")
	}

	as.Shutdown()
}
