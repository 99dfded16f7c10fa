package modbus

import (
	"context"
	"strconv"

	"github.com/berfenger/battracker2mqtt/internal/config"
	"github.com/berfenger/battracker2mqtt/internal/core/domain"
	"github.com/berfenger/battracker2mqtt/internal/core/port"
	"github.com/berfenger/battracker2mqtt/pkg/counter_modbus"

	"github.com/reugn/go-quartz/logger"
)

// SensorReader exposes Modbus battery registers under the entity ids the
// tracker was configured with.
type SensorReader struct {
	reader   counter_modbus.BatteryModbusReader
	entities []domain.BatteryEntities
}

func NewSensorReader(reader counter_modbus.BatteryModbusReader, entities []domain.BatteryEntities) *SensorReader {
	return &SensorReader{
		reader:   reader,
		entities: entities,
	}
}

func LayoutFromConfig(cfg config.ModbusConfig) counter_modbus.RegisterLayout {
	return counter_modbus.RegisterLayout{
		Base:            cfg.RegisterBase,
		Stride:          cfg.RegisterStride,
		DischargeOffset: cfg.DischargeOffset,
		ChargeOffset:    cfg.ChargeOffset,
		CurrentOffset:   cfg.CurrentOffset,
		VoltageOffset:   cfg.VoltageOffset,
		CurrentScale:    cfg.CurrentScale,
		VoltageScale:    cfg.VoltageScale,
	}
}

func (s *SensorReader) Open() error {
	return s.reader.Open()
}

func (s *SensorReader) Close() error {
	return s.reader.Close()
}

// Read fetches only the batteries owning one of the requested entities. A
// failing battery is skipped so the others are still reported.
func (s *SensorReader) Read(ctx context.Context, entityIds []string) (map[string]string, error) {
	wanted := make(map[string]bool, len(entityIds))
	for _, id := range entityIds {
		wanted[id] = true
	}

	states := map[string]string{}
	var lastErr error
	read := 0
	for _, be := range s.entities {
		if !wanted[be.Discharge] && !wanted[be.Charge] && !wanted[be.Current] && !wanted[be.Voltage] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := s.reader.ReadBattery(be.Battery)
		if err != nil {
			logger.Error(err)
			lastErr = err
			continue
		}
		read++
		put(states, wanted, be.Discharge, strconv.FormatUint(uint64(r.Discharge), 10))
		put(states, wanted, be.Charge, strconv.FormatUint(uint64(r.Charge), 10))
		put(states, wanted, be.Current, strconv.FormatFloat(r.Current, 'f', -1, 64))
		put(states, wanted, be.Voltage, strconv.FormatFloat(r.Voltage, 'f', -1, 64))
	}
	if read == 0 && lastErr != nil {
		return nil, lastErr
	}
	return states, nil
}

func put(states map[string]string, wanted map[string]bool, id, value string) {
	if id != "" && wanted[id] {
		states[id] = value
	}
}

// ensure interface compliance
var _ port.SensorReader = (*SensorReader)(nil)
