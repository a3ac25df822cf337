package conv

// FormatClock writes "HH:MM:SS" into buf (which must hold 8 bytes) and
// returns the used slice. Fields are taken modulo 100 so a corrupt value
// cannot overrun the fixed width.
func FormatClock(buf []byte, h, m, s uint8) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	put2(buf[0:2], h)
	buf[2] = ':'
	put2(buf[3:5], m)
	buf[5] = ':'
	put2(buf[6:8], s)
	return buf[:8]
}

func put2(dst []byte, v uint8) {
	v %= 100
	dst[0] = '0' + v/10
	dst[1] = '0' + v%10
}
