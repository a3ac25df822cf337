package ds1302

import "time"

// The DS1302 talks over a three-line synchronous interface that is neither
// SPI nor I2C: a clock, a chip-enable that frames each command+data
// exchange, and a single data line that reverses direction between the
// command byte and the data byte of a read. Bits move LSB first. There is
// no acknowledgment from the chip; correctness rests entirely on edge
// ordering and minimum pulse widths.

// Pin is a dedicated output line (clock, chip-enable). Level changes
// cannot fail on the supported platforms.
type Pin interface {
	Set(level bool)
}

// DataPin is the bidirectional I/O line. The register engine switches its
// direction only at the boundary between the command byte and the data
// byte of a read; the transport itself never changes direction.
type DataPin interface {
	Pin
	Get() bool
	ConfigureInput() error
	ConfigureOutput(initial bool) error
}

// AC characteristics at the low end of the supply range (datasheet
// "AC Electrical Characteristics"). Protocol constants, not tunables.
const (
	tPulse   = 1 * time.Microsecond // min clock half-period / data setup
	tCESetup = 4 * time.Microsecond // CE assert to first clock edge
)

type threeWire struct {
	clk   Pin
	dat   DataPin
	ce    Pin
	delay func(time.Duration)
}

// writeByte shifts one byte out LSB first. The chip latches the data line
// on the rising clock edge; each phase is held for at least tPulse. Leaves
// the clock low and the data line at the last bit driven.
func (w *threeWire) writeByte(v byte) {
	for i := 0; i < 8; i++ {
		w.clk.Set(false)
		w.dat.Set(v&(1<<i) != 0)
		w.delay(tPulse)
		w.clk.Set(true)
		w.delay(tPulse)
	}
	w.clk.Set(false)
}

// readByte shifts one byte in LSB first, sampling while the clock is low
// and pulsing the clock to advance the chip to the next bit. The data line
// must already be configured as an input.
func (w *threeWire) readByte() byte {
	var v byte
	for i := 0; i < 8; i++ {
		w.clk.Set(false)
		w.delay(tPulse)
		if w.dat.Get() {
			v |= 1 << i
		}
		w.clk.Set(true)
		w.delay(tPulse)
	}
	w.clk.Set(false)
	return v
}

// transaction frames body with the chip-enable line: clock driven low,
// CE asserted, CE setup time observed, then body. CE is deasserted on
// every exit path — once asserted, the exchange must run to its deassert
// or the chip is left mid-shift.
func (w *threeWire) transaction(body func() error) error {
	w.clk.Set(false)
	w.ce.Set(true)
	defer w.ce.Set(false)
	w.delay(tCESetup)
	return body()
}
