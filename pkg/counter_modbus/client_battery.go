package counter_modbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type BatteryCounterModbusReader struct {
	ModbusClient
	layout RegisterLayout
}

func CreateBatteryCounterModbusReader(ip string, port uint, unitId uint8, timeout time.Duration,
	layout RegisterLayout, logger *zap.Logger, instrumentation *ModbusInstrument) (BatteryModbusReader, error) {
	if layout.blockSize() > 125 {
		return nil, errors.New("register block exceeds the modbus read limit of 125 registers")
	}
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", ip, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []ModbusInstrument
	logInst := debugLoggerInstrumentation(logger.With(zap.String("target", "battery")).With(zap.Uint8("unitId", unitId)))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	err = client.SetUnitId(unitId)
	if err != nil {
		return nil, err
	}
	return &BatteryCounterModbusReader{
		ModbusClient: ModbusClient{
			client:     client,
			instrument: inst,
		},
		layout: layout,
	}, nil
}

func (reader *BatteryCounterModbusReader) Open() error {
	return reader.client.Open()
}

func (reader *BatteryCounterModbusReader) Close() error {
	return reader.client.Close()
}

func (reader *BatteryCounterModbusReader) ReadBattery(battery int) (*BatteryReading, error) {
	if battery < 1 {
		return nil, fmt.Errorf("invalid battery number %d", battery)
	}
	regs, err := reader.readRegisters(reader.layout.blockStart(battery), reader.layout.blockSize(), modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, err
	}
	return decodeBattery(battery, regs, reader.layout, reader.ModbusClient), nil
}

func decodeBattery(battery int, regs []uint16, layout RegisterLayout, c ModbusClient) *BatteryReading {
	return &BatteryReading{
		Battery:   battery,
		Discharge: regs[layout.DischargeOffset],
		Charge:    regs[layout.ChargeOffset],
		Current:   c.applyScaleInt16(regs[layout.CurrentOffset], layout.CurrentScale),
		Voltage:   c.applyScale(regs[layout.VoltageOffset], layout.VoltageScale),
	}
}
