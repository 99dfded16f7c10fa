package counter_modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLayout() RegisterLayout {
	return RegisterLayout{
		Base:            1000,
		Stride:          16,
		DischargeOffset: 0,
		ChargeOffset:    1,
		CurrentOffset:   2,
		VoltageOffset:   3,
		CurrentScale:    0.1,
		VoltageScale:    0.01,
	}
}

func TestLayoutBlocks(t *testing.T) {

	assert := assert.New(t)

	layout := testLayout()
	assert.Equal(uint16(1000), layout.blockStart(1))
	assert.Equal(uint16(1032), layout.blockStart(3))
	assert.Equal(uint16(4), layout.blockSize())
}

func TestDecodeBattery(t *testing.T) {

	assert := assert.New(t)

	// current is signed: 0xFFAC = -84 -> -8.4 A
	r := decodeBattery(2, []uint16{65500, 1234, 0xFFAC, 5120}, testLayout(), ModbusClient{})
	assert.Equal(2, r.Battery)
	assert.Equal(uint16(65500), r.Discharge)
	assert.Equal(uint16(1234), r.Charge)
	assert.InDelta(-8.4, r.Current, 0.0001)
	assert.InDelta(51.2, r.Voltage, 0.0001)
}

func TestMockedReaderRollsOver(t *testing.T) {

	assert := assert.New(t)

	reader, err := CreateTestBatteryModbusReader()
	assert.NoError(err)
	assert.NoError(reader.Open())

	var last uint16
	rolled := false
	for i := 0; i < 5; i++ {
		r, err := reader.ReadBattery(1)
		assert.NoError(err)
		if r.Discharge < last {
			rolled = true
		}
		last = r.Discharge
	}
	assert.True(rolled, "16-bit counter wraps around")
}
