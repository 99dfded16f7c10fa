package counter_modbus

// RegisterLayout describes where the values of each battery live. Battery n
// starts at Base + (n-1)*Stride and every value is an offset inside that block.
type RegisterLayout struct {
	Base            uint16
	Stride          uint16
	DischargeOffset uint16
	ChargeOffset    uint16
	CurrentOffset   uint16
	VoltageOffset   uint16
	CurrentScale    float64
	VoltageScale    float64
}

// BatteryReading holds the raw 16-bit energy counters and the scaled
// current (A, positive while charging) and pack voltage (V) of a battery.
type BatteryReading struct {
	Battery   int
	Discharge uint16
	Charge    uint16
	Current   float64
	Voltage   float64
}

type BatteryModbusReader interface {
	Open() error
	Close() error
	ReadBattery(battery int) (*BatteryReading, error)
}

func (l RegisterLayout) blockStart(battery int) uint16 {
	return l.Base + uint16(battery-1)*l.Stride
}

// blockSize is the number of registers covering every configured offset.
func (l RegisterLayout) blockSize() uint16 {
	size := uint16(0)
	for _, offset := range []uint16{l.DischargeOffset, l.ChargeOffset, l.CurrentOffset, l.VoltageOffset} {
		if offset+1 > size {
			size = offset + 1
		}
	}
	return size
}
