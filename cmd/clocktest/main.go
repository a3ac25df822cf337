// Command clocktest is an interactive shell for poking the RTC over the
// service bus: read the time, set it, halt and restart the oscillator,
// change the sampling rate. It speaks the same control topics any other
// bus client would.
package main

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"clockcode-go/bus"
	"clockcode-go/services/hal"
	"clockcode-go/services/hal/platform"
	"clockcode-go/types"

	_ "clockcode-go/services/hal/devices/ds1302"
)

const (
	pinClk = 2
	pinDat = 3
	pinCE  = 4

	replyTimeout = 2 * time.Second
)

func ctrlTopic(method string) bus.Topic {
	return bus.T("hal", "capability", "clock", 0, "control", method)
}

var topicClockValue = bus.T("hal", "capability", "clock", 0, "value")

// request round-trips one control message and returns the reply payload.
func request(conn *bus.Connection, method string, payload any) (any, error) {
	replyTo := bus.T("clocktest", "reply", method)
	sub := conn.Subscribe(replyTo)
	defer sub.Unsubscribe()

	msg := conn.NewMessage(ctrlTopic(method), payload, false)
	msg.ReplyTo = replyTo
	conn.Publish(msg)

	select {
	case m := <-sub.Channel():
		return m.Payload, nil
	case <-time.After(replyTimeout):
		return nil, fmt.Errorf("no reply to %s", method)
	}
}

func readTime(conn *bus.Connection) (types.ClockValue, error) {
	sub := conn.Subscribe(topicClockValue)
	defer sub.Unsubscribe()

	if _, err := request(conn, "read_now", nil); err != nil {
		return types.ClockValue{}, err
	}
	select {
	case m := <-sub.Channel():
		v, ok := m.Payload.(types.ClockValue)
		if !ok {
			return types.ClockValue{}, fmt.Errorf("unexpected value payload %T", m.Payload)
		}
		return v, nil
	case <-time.After(replyTimeout):
		return types.ClockValue{}, fmt.Errorf("no value published")
	}
}

// parseHMS accepts "HH:MM:SS".
func parseHMS(s string) (types.SetTimeRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return types.SetTimeRequest{}, fmt.Errorf("want HH:MM:SS, got %q", s)
	}
	var f [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return types.SetTimeRequest{}, fmt.Errorf("bad field %q", p)
		}
		f[i] = n
	}
	if f[0] > 23 || f[1] > 59 || f[2] > 59 {
		return types.SetTimeRequest{}, fmt.Errorf("%q out of range", s)
	}
	return types.SetTimeRequest{Hour: uint8(f[0]), Minute: uint8(f[1]), Second: uint8(f[2])}, nil
}

func main() {
	time.Sleep(2 * time.Second)
	console := platform.Console()
	fmt.Fprintln(console, "clocktest: 'help' for commands")

	ctx := context.Background()
	b := bus.NewBus(32)
	go hal.Run(ctx, b.NewConnection("hal"), platform.DefaultPinFactory(), platform.DefaultI2CFactory())

	boot := b.NewConnection("boot")
	boot.Publish(boot.NewMessage(bus.T("config", "hal"), hal.HALConfig{
		Version: 1,
		Devices: []hal.DevCfg{{
			ID:   "rtc0",
			Type: "ds1302",
			// Background sampling off; this shell reads on demand.
			PollMS: -1,
			Params: map[string]any{"clk": pinClk, "dat": pinDat, "ce": pinCE},
		}},
	}, true))

	conn := b.NewConnection("clocktest")
	sc := bufio.NewScanner(console)
	fmt.Fprint(console, "> ")
	for sc.Scan() {
		args, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintln(console, "parse error:", err)
			fmt.Fprint(console, "> ")
			continue
		}
		if len(args) == 0 {
			fmt.Fprint(console, "> ")
			continue
		}

		switch args[0] {
		case "help":
			fmt.Fprintln(console, "commands:")
			fmt.Fprintln(console, "  time              read the clock")
			fmt.Fprintln(console, "  set HH:MM:SS      set the clock (24h)")
			fmt.Fprintln(console, "  halt on|off       stop/start the oscillator")
			fmt.Fprintln(console, "  rate MS           set background sampling interval")

		case "time":
			v, err := readTime(conn)
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			state := ""
			if v.Halted {
				state = " (halted)"
			}
			fmt.Fprintf(console, "%02d:%02d:%02d%s\n", v.Hour, v.Minute, v.Second, state)

		case "set":
			if len(args) != 2 {
				fmt.Fprintln(console, "usage: set HH:MM:SS")
				break
			}
			req, err := parseHMS(args[1])
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			rep, err := request(conn, "set_time", req)
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			fmt.Fprintf(console, "%+v\n", rep)

		case "halt":
			if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Fprintln(console, "usage: halt on|off")
				break
			}
			rep, err := request(conn, "halt", map[string]any{"on": args[1] == "on"})
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			fmt.Fprintf(console, "%+v\n", rep)

		case "rate":
			if len(args) != 2 {
				fmt.Fprintln(console, "usage: rate MS")
				break
			}
			ms, err := strconv.Atoi(args[1])
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			rep, err := request(conn, "set_rate", map[string]any{"ms": ms})
			if err != nil {
				fmt.Fprintln(console, "error:", err)
				break
			}
			fmt.Fprintf(console, "%+v\n", rep)

		default:
			fmt.Fprintln(console, "unknown command:", args[0])
		}
		fmt.Fprint(console, "> ")
	}
}
