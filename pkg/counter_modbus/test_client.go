package counter_modbus

import "sync"

func CreateTestBatteryModbusReader() (BatteryModbusReader, error) {
	return &TestBatteryModbusReader{counters: map[int]uint16{}}, nil
}

// TestBatteryModbusReader simulates batteries discharging 5 Wh per read with
// counters close to the 16-bit limit, so rollovers happen early.
type TestBatteryModbusReader struct {
	mu       sync.Mutex
	counters map[int]uint16
}

func (reader *TestBatteryModbusReader) Open() error {
	return nil
}

func (reader *TestBatteryModbusReader) Close() error {
	return nil
}

func (reader *TestBatteryModbusReader) ReadBattery(battery int) (*BatteryReading, error) {
	reader.mu.Lock()
	defer reader.mu.Unlock()
	counter, ok := reader.counters[battery]
	if !ok {
		counter = 65520
	}
	counter += 5
	reader.counters[battery] = counter
	return &BatteryReading{
		Battery:   battery,
		Discharge: counter,
		Charge:    1200,
		Current:   -8.4,
		Voltage:   51.2,
	}, nil
}
