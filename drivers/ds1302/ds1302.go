// Package ds1302 implements a driver for the DS1302 trickle-charge
// timekeeping chip over its three-wire interface (clock, data, chip-enable)
// on plain GPIO. It provides read/write access to the seconds, minutes and
// hours registers only; the calendar registers, on-chip RAM, burst mode and
// the write-protect/charge controls remain unimplemented.
//
// Every operation is one complete chip-enable-framed transaction; the
// driver keeps no state between calls. It is synchronous and not safe for
// concurrent use — the three pins must be owned exclusively by one Device
// for its lifetime.
//
// Datasheet: https://www.analog.com/media/en/technical-documentation/data-sheets/DS1302.pdf
package ds1302

import "time"

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Delay blocks for at least the given duration between line
	// transitions. Defaults to time.Sleep; MCU platforms may install a
	// tighter cycle-counted busy-wait.
	Delay func(time.Duration)
}

// TimeOfDay is a 24-hour-normalised wall time.
type TimeOfDay struct {
	Hour   uint8 // 0..23
	Minute uint8 // 0..59
	Second uint8 // 0..59
}

// Device drives one DS1302 over three GPIO lines.
type Device struct {
	bus threeWire
}

// New creates a Device over the three lines. The pins must already be
// owned by the caller; this function does not touch the hardware.
func New(clk Pin, dat DataPin, ce Pin) *Device {
	return &Device{bus: threeWire{clk: clk, dat: dat, ce: ce, delay: time.Sleep}}
}

// Configure applies optional settings and drives the bus to its idle state
// (clock low, chip-enable deasserted, data line output low).
func (d *Device) Configure(cfgs ...Config) error {
	if len(cfgs) > 0 && cfgs[0].Delay != nil {
		d.bus.delay = cfgs[0].Delay
	}
	d.bus.clk.Set(false)
	d.bus.ce.Set(false)
	return d.bus.dat.ConfigureOutput(false)
}

// readRegister frames one command+data read. The data line is switched to
// input for the data byte and back to output before the transaction
// closes. A direction-switch failure propagates as-is; chip-enable is
// still deasserted on that path.
func (d *Device) readRegister(addr byte) (byte, error) {
	var v byte
	err := d.bus.transaction(func() error {
		d.bus.writeByte(command(addr, true))
		if err := d.bus.dat.ConfigureInput(); err != nil {
			return err
		}
		v = d.bus.readByte()
		return d.bus.dat.ConfigureOutput(false)
	})
	return v, err
}

// writeRegister frames one command+data write; the data line stays an
// output throughout.
func (d *Device) writeRegister(addr, v byte) error {
	return d.bus.transaction(func() error {
		d.bus.writeByte(command(addr, false))
		d.bus.writeByte(v)
		return nil
	})
}

// ReadSeconds returns the seconds register, clock-halt flag masked off.
func (d *Device) ReadSeconds() (uint8, error) {
	raw, err := d.readRegister(regSeconds)
	if err != nil {
		return 0, err
	}
	sec, err := bcdToDec(raw &^ secondsCH)
	if err != nil {
		return 0, err
	}
	if sec > 59 {
		return 0, ErrBadBCD
	}
	return sec, nil
}

// ReadMinutes returns the minutes register; the whole byte is BCD.
func (d *Device) ReadMinutes() (uint8, error) {
	raw, err := d.readRegister(regMinutes)
	if err != nil {
		return 0, err
	}
	min, err := bcdToDec(raw)
	if err != nil {
		return 0, err
	}
	if min > 59 {
		return 0, ErrBadBCD
	}
	return min, nil
}

// ReadHours returns the decoded hours register. In 24-hour mode the result
// never reports AM/PM; in 12-hour mode it always does.
func (d *Device) ReadHours() (Hours, error) {
	raw, err := d.readRegister(regHours)
	if err != nil {
		return Hours{}, err
	}
	return unpackHours(raw)
}

// Halted reports the clock-halt flag in the seconds register.
func (d *Device) Halted() (bool, error) {
	raw, err := d.readRegister(regSeconds)
	if err != nil {
		return false, err
	}
	return raw&secondsCH != 0, nil
}

// WriteSeconds sets the seconds register, composing the BCD value with the
// clock-halt flag. halt=true stops the oscillator.
func (d *Device) WriteSeconds(sec uint8, halt bool) error {
	if sec > 59 {
		return ErrFieldRange
	}
	b, _ := decToBcd(sec)
	if halt {
		b |= secondsCH
	}
	return d.writeRegister(regSeconds, b)
}

// WriteMinutes sets the minutes register.
func (d *Device) WriteMinutes(min uint8) error {
	if min > 59 {
		return ErrFieldRange
	}
	b, _ := decToBcd(min)
	return d.writeRegister(regMinutes, b)
}

// WriteHours sets the hours register, packing the mode and AM/PM bits
// exactly inversely to ReadHours.
func (d *Device) WriteHours(h Hours) error {
	b, err := packHours(h)
	if err != nil {
		return err
	}
	return d.writeRegister(regHours, b)
}

// ReadTime reads hours, minutes and seconds and normalises to 24-hour
// form (12 AM -> 0, 12 PM -> 12). Each register is its own transaction,
// so a reading taken across a minute boundary can be torn by one minute;
// callers that care should read twice and compare.
func (d *Device) ReadTime() (TimeOfDay, error) {
	h, err := d.ReadHours()
	if err != nil {
		return TimeOfDay{}, err
	}
	min, err := d.ReadMinutes()
	if err != nil {
		return TimeOfDay{}, err
	}
	sec, err := d.ReadSeconds()
	if err != nil {
		return TimeOfDay{}, err
	}
	hr := h.Hour
	if h.Mode12 {
		hr = h.Hour % 12
		if h.PM {
			hr += 12
		}
	}
	return TimeOfDay{Hour: hr, Minute: min, Second: sec}, nil
}

// SetTime writes t in 24-hour mode with the oscillator running. Seconds
// are written last so the divider chain restarts closest to the intended
// instant.
func (d *Device) SetTime(t TimeOfDay) error {
	if t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return ErrFieldRange
	}
	if err := d.WriteHours(Hours{Hour: t.Hour}); err != nil {
		return err
	}
	if err := d.WriteMinutes(t.Minute); err != nil {
		return err
	}
	return d.WriteSeconds(t.Second, false)
}
