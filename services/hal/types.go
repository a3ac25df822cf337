package hal

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// ------------------------
// Adaptor model
// ------------------------

// Reading is one named figure produced by a device.
type Reading struct {
	Name  string
	Value any
}

// Sample is a capability-addressed set of readings plus an optional
// payload published verbatim on the capability value topic.
type Sample struct {
	Kind     string
	CapIdx   int
	Readings []Reading
	Payload  any
}

// CapInfo describes one capability an adaptor exposes.
type CapInfo struct {
	Kind string
	Info map[string]any
}

var (
	// ErrNotReady tells the worker the device needs more settle time;
	// Collect will be retried after the adaptor's retry interval.
	ErrNotReady = errors.New("hal: not ready")
	// ErrUnsupported is returned by Control for unknown methods.
	ErrUnsupported = errors.New("hal: unsupported")
)

// Adaptor binds one hardware device into the HAL. Trigger starts a
// measurement and returns how long the device needs before Collect;
// zero means the result is immediately readable.
type Adaptor interface {
	ID() string
	Capabilities() []CapInfo
	Trigger(ctx context.Context) (wait time.Duration, err error)
	Collect(ctx context.Context) ([]Sample, error)
	Control(ctx context.Context, kind string, capIdx int, method string, payload any) (any, error)
	RetryInterval() time.Duration
}

// ------------------------
// Measurement worker wire types
// ------------------------

type MeasureReq struct {
	Adaptor Adaptor
	Prio    bool
}

type Result struct {
	DeviceID string
	Samples  []Sample
	Err      error
	At       time.Time
}

type WorkerConfig struct {
	QueueLen     int           // pending request queue (default 8)
	MaxCollects  int           // in-flight collect slots (default 4)
	SubmitWait   time.Duration // how long Submit blocks on a full queue
	DefaultRetry time.Duration // retry interval when the adaptor gives none
}

// ------------------------
// Platform surface
// ------------------------

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIOPin is the HAL's view of one digital pin. Direction may be
// switched at runtime; drivers that share a data line depend on that.
type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool) error
	Get() (bool, error)
	Number() int
}

// PinFactory hands out pins by board pin number. A pin may be claimed
// once; Release returns it to the pool.
type PinFactory interface {
	ByNumber(n int) (GPIOPin, error)
	Release(n int)
}

// I2CBusFactory hands out configured I2C buses by index.
type I2CBusFactory interface {
	ByIndex(n int) (drivers.I2C, error)
}
