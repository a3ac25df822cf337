// Package ds1302 binds the DS1302 RTC driver into the HAL device
// registry under the type name "ds1302".
package ds1302

import (
	"fmt"
	"time"

	driver "clockcode-go/drivers/ds1302"
	"clockcode-go/services/hal"
)

// Params names the three board pins the chip is wired to.
type Params struct {
	Clk int `json:"clk"`
	Dat int `json:"dat"`
	Ce  int `json:"ce"`
	// SampleMS overrides the default 1s background sampling interval.
	SampleMS int `json:"sample_ms,omitempty"`
}

func init() {
	hal.RegisterBuilder("ds1302", builder{})
}

type builder struct{}

func (builder) Build(in hal.BuildInput) (hal.BuildOutput, error) {
	var p Params
	if err := hal.DecodeParams(in.Params, &p); err != nil {
		return hal.BuildOutput{}, err
	}
	if p.Clk == p.Dat || p.Dat == p.Ce || p.Clk == p.Ce {
		return hal.BuildOutput{}, fmt.Errorf("ds1302: pins must be distinct (clk=%d dat=%d ce=%d)", p.Clk, p.Dat, p.Ce)
	}

	clk, err := in.Pins.ByNumber(p.Clk)
	if err != nil {
		return hal.BuildOutput{}, err
	}
	dat, err := in.Pins.ByNumber(p.Dat)
	if err != nil {
		return hal.BuildOutput{}, err
	}
	ce, err := in.Pins.ByNumber(p.Ce)
	if err != nil {
		return hal.BuildOutput{}, err
	}
	if err := clk.ConfigureOutput(false); err != nil {
		return hal.BuildOutput{}, err
	}
	if err := ce.ConfigureOutput(false); err != nil {
		return hal.BuildOutput{}, err
	}

	dev := driver.New(outPin{clk}, dataPin{dat}, outPin{ce})
	if err := dev.Configure(); err != nil {
		return hal.BuildOutput{}, err
	}

	every := time.Second
	if p.SampleMS > 0 {
		every = time.Duration(p.SampleMS) * time.Millisecond
	}
	return hal.BuildOutput{
		Adaptor:     hal.NewClockAdaptor(in.DeviceID, dev),
		SampleEvery: every,
	}, nil
}

// outPin narrows a HAL pin to the driver's write-only line. Set errors
// cannot happen once the pin is configured as an output.
type outPin struct{ p hal.GPIOPin }

func (o outPin) Set(level bool) { _ = o.p.Set(level) }

// dataPin adapts the bidirectional line, carrying direction-switch
// errors through to the driver.
type dataPin struct{ p hal.GPIOPin }

func (d dataPin) Set(level bool) { _ = d.p.Set(level) }

func (d dataPin) Get() bool {
	v, _ := d.p.Get()
	return v
}

func (d dataPin) ConfigureInput() error {
	return d.p.ConfigureInput(hal.PullNone)
}

func (d dataPin) ConfigureOutput(initial bool) error {
	return d.p.ConfigureOutput(initial)
}
