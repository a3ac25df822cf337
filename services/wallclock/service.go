// Package wallclock prints the RTC time as it arrives on the bus. It is
// the firmware's human-facing heartbeat: one line per clock sample.
package wallclock

import (
	"context"

	"clockcode-go/bus"
	"clockcode-go/types"
	"clockcode-go/x/conv"
)

var (
	topicConfigWallclock = bus.T("config", "wallclock")
	topicClockValues     = bus.T("hal", "capability", "clock", "+", "value")
)

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigWallclock)
	valSub := conn.Subscribe(topicClockValues)
	defer conn.Disconnect()

	enabled := true
	var line [8]byte

	for {
		select {
		case <-ctx.Done():
			println("Info: wallclock service stopping")
			return

		case msg := <-valSub.Channel():
			if !enabled {
				continue
			}
			v, ok := msg.Payload.(types.ClockValue)
			if !ok {
				continue
			}
			if v.Halted {
				println("Info:", string(conv.FormatClock(line[:], v.Hour, v.Minute, v.Second)), "RTC (halted)")
			} else {
				println("Info:", string(conv.FormatClock(line[:], v.Hour, v.Minute, v.Second)), "RTC")
			}

		case msg := <-cfgSub.Channel():
			if m, ok := msg.Payload.(map[string]any); ok {
				if en, ok := m["enabled"].(bool); ok {
					enabled = en
					println("Info: wallclock enabled:", enabled)
				}
			}
		}
	}
}

// Start the wallclock service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
