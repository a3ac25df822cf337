package hal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BuildInput is everything a device builder may draw on. Params is the
// raw (still undecoded) params value from the device config entry.
type BuildInput struct {
	Ctx      context.Context
	Pins     PinFactory
	Buses    I2CBusFactory
	DeviceID string
	Type     string
	Params   any
}

type BuildOutput struct {
	Adaptor Adaptor
	// SampleEvery > 0 enrols the device for periodic background
	// measurement at that interval.
	SampleEvery time.Duration
}

type Builder interface {
	Build(in BuildInput) (BuildOutput, error)
}

var (
	buildersMu sync.Mutex
	builders   = map[string]Builder{}
)

// RegisterBuilder is called from device package init functions. A
// duplicate type name is a programming error.
func RegisterBuilder(typ string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	if _, dup := builders[typ]; dup {
		panic("hal: duplicate builder: " + typ)
	}
	builders[typ] = b
}

func findBuilder(typ string) (Builder, error) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	b, ok := builders[typ]
	if !ok {
		return nil, fmt.Errorf("hal: no builder for device type %q", typ)
	}
	return b, nil
}
