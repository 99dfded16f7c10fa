package modbus

import (
	"context"
	"errors"
	"testing"

	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/pkg/counter_modbus"
	"github.com/stretchr/testify/assert"
)

type failingReader struct {
	counter_modbus.BatteryModbusReader
	failBattery int
}

func (r failingReader) ReadBattery(battery int) (*counter_modbus.BatteryReading, error) {
	if battery == r.failBattery {
		return nil, errors.New("timeout")
	}
	return r.BatteryModbusReader.ReadBattery(battery)
}

func testEntities() []domain.BatteryEntities {
	return []domain.BatteryEntities{
		{Battery: 1, Discharge: "sensor.b1_out", Charge: "sensor.b1_in", Current: "sensor.b1_amps"},
		{Battery: 2, Discharge: "sensor.b2_out", Charge: "sensor.b2_in"},
	}
}

func TestReadMapsEntities(t *testing.T) {
	assert := assert.New(t)

	mocked, _ := counter_modbus.CreateTestBatteryModbusReader()
	s := NewSensorReader(mocked, testEntities())
	assert.NoError(s.Open())

	states, err := s.Read(context.Background(), []string{"sensor.b1_out", "sensor.b1_amps", "sensor.b1_in"})
	assert.NoError(err)
	assert.Equal(map[string]string{
		"sensor.b1_out":  "65525",
		"sensor.b1_in":   "1200",
		"sensor.b1_amps": "-8.4",
	}, states)
}

func TestReadSkipsFailingBattery(t *testing.T) {
	assert := assert.New(t)

	mocked, _ := counter_modbus.CreateTestBatteryModbusReader()
	s := NewSensorReader(failingReader{BatteryModbusReader: mocked, failBattery: 1}, testEntities())

	states, err := s.Read(context.Background(), []string{"sensor.b1_out", "sensor.b2_out"})
	assert.NoError(err)
	assert.Equal(map[string]string{"sensor.b2_out": "65525"}, states)

	_, err = s.Read(context.Background(), []string{"sensor.b1_out"})
	assert.Error(err)
}
