package ds1302

import "errors"

// Register values cross the wire BCD-packed: each nibble carries one
// decimal digit. The bus has no acknowledgment, so a nibble above 9 (or a
// decoded field outside its register's range) is the only evidence of a
// mis-timed or mis-framed transfer. Such values are surfaced as ErrBadBCD,
// never clamped; retry policy belongs to the caller.
var (
	ErrBadBCD     = errors.New("ds1302: value outside BCD range")
	ErrFieldRange = errors.New("ds1302: time field out of range")
)

// bcdToDec decodes one BCD-packed byte (tens in the high nibble).
func bcdToDec(raw byte) (uint8, error) {
	hi := raw >> 4
	lo := raw & 0x0F
	if hi > 9 || lo > 9 {
		return 0, ErrBadBCD
	}
	return hi*10 + lo, nil
}

// decToBcd is the inverse of bcdToDec; v must be at most 99.
func decToBcd(v uint8) (byte, error) {
	if v > 99 {
		return 0, ErrFieldRange
	}
	return (v/10)<<4 | v%10, nil
}

// Hours is the decoded hours register. In 12-hour mode Hour is 1..12 and PM
// distinguishes the half-day; in 24-hour mode Hour is 0..23 and PM carries
// no meaning.
type Hours struct {
	Hour   uint8
	Mode12 bool
	PM     bool
}

// unpackHours decodes the dual-mode hours register. The mode bit changes
// both the hour field width and the meaning of bit 5, so the two layouts
// are handled separately rather than masked generically.
func unpackHours(raw byte) (Hours, error) {
	if raw&hoursMode12 != 0 {
		hr, err := bcdToDec(raw & hoursMask12)
		if err != nil {
			return Hours{}, err
		}
		if hr < 1 || hr > 12 {
			return Hours{}, ErrBadBCD
		}
		return Hours{Hour: hr, Mode12: true, PM: raw&hoursPM != 0}, nil
	}
	hr, err := bcdToDec(raw & hoursMask24)
	if err != nil {
		return Hours{}, err
	}
	if hr > 23 {
		return Hours{}, ErrBadBCD
	}
	return Hours{Hour: hr}, nil
}

// packHours is the exact inverse of unpackHours.
func packHours(h Hours) (byte, error) {
	if h.Mode12 {
		if h.Hour < 1 || h.Hour > 12 {
			return 0, ErrFieldRange
		}
		b, _ := decToBcd(h.Hour)
		b |= hoursMode12
		if h.PM {
			b |= hoursPM
		}
		return b, nil
	}
	if h.Hour > 23 {
		return 0, ErrFieldRange
	}
	b, _ := decToBcd(h.Hour)
	return b, nil
}
