package main

import (
	"context"
	"time"

	"clockcode-go/bus"
	"clockcode-go/services/hal"
	"clockcode-go/services/hal/platform"
	"clockcode-go/services/wallclock"

	_ "clockcode-go/services/hal/devices/ds1302"
)

// Board wiring for the DS1302 breakout.
const (
	pinClk = 2
	pinDat = 3
	pinCE  = 4
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot")

	ctx := context.Background()
	b := bus.NewBus(32)

	go hal.Run(ctx, b.NewConnection("hal"), platform.DefaultPinFactory(), platform.DefaultI2CFactory())

	wc := &wallclock.Service{}
	_ = wc.Start(ctx, b.NewConnection("wallclock"))

	boot := b.NewConnection("boot")
	boot.Publish(boot.NewMessage(bus.T("config", "hal"), hal.HALConfig{
		Version: 1,
		Devices: []hal.DevCfg{{
			ID:   "rtc0",
			Type: "ds1302",
			Params: map[string]any{
				"clk": pinClk,
				"dat": pinDat,
				"ce":  pinCE,
			},
		}},
	}, true))

	select {}
}
