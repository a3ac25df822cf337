package ds1302

// Command byte and register layout for the subset of the chip this
// driver implements.

const (
	// Command byte layout (datasheet Table 3, "Address/Command Byte").
	// Bit 7 must be 1 or the chip ignores the transfer. Bit 6 selects RAM
	// (1) or clock (0) address space, bits 5..1 carry the register
	// address, bit 0 the direction (1 = read).
	cmdBase = 0x80
	cmdRAM  = 0x40 // part of the layout; RAM access is not implemented
	cmdRead = 0x01

	addrMask = 0x1F

	// Clock-space register addresses (A4..A0).
	regSeconds = 0x00
	regMinutes = 0x01
	regHours   = 0x02

	// Seconds register: bit 7 is the clock-halt flag (oscillator stopped).
	secondsCH = 0x80

	// Hours register: bit 7 selects 12-hour mode; in that mode bit 5 is
	// the AM/PM flag (1 = PM) and the hour occupies the low 5 bits. In
	// 24-hour mode the hour occupies the low 6 bits.
	hoursMode12 = 0x80
	hoursPM     = 0x20
	hoursMask12 = 0x1F
	hoursMask24 = 0x3F
)

// command builds the command byte for one clock-space register access.
func command(addr byte, read bool) byte {
	c := byte(cmdBase) | (addr&addrMask)<<1
	if read {
		c |= cmdRead
	}
	return c
}
