package types

// ------------------------
// Capability kinds
// ------------------------

type Kind string

const (
	KindClock Kind = "clock"
	KindGPIO  Kind = "gpio"
)

// ------------------------
// Clock capability payloads
// ------------------------

// ClockValue is one reading of the hardware clock, 24-hour normalised.
type ClockValue struct {
	Hour   uint8 `json:"hour"`
	Minute uint8 `json:"minute"`
	Second uint8 `json:"second"`
	Halted bool  `json:"halted"`
	TsMs   int64 `json:"ts_ms"` // host timestamp at collection
}

// SetTimeRequest is the payload of the clock "set_time" control method.
type SetTimeRequest struct {
	Hour   uint8 `json:"hour"`
	Minute uint8 `json:"minute"`
	Second uint8 `json:"second"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
