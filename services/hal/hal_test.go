package hal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"clockcode-go/bus"
	"clockcode-go/types"
)

// ---- fakes ----

type memPin struct {
	num   int
	level bool
}

func (p *memPin) ConfigureInput(pull Pull) error     { return nil }
func (p *memPin) ConfigureOutput(initial bool) error { p.level = initial; return nil }
func (p *memPin) Set(level bool) error               { p.level = level; return nil }
func (p *memPin) Get() (bool, error)                 { return p.level, nil }
func (p *memPin) Number() int                        { return p.num }

type memPins struct {
	mu       sync.Mutex
	claimed  map[int]bool
	released []int
}

func newMemPins() *memPins { return &memPins{claimed: map[int]bool{}} }

func (f *memPins) ByNumber(n int) (GPIOPin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed[n] {
		return nil, fmt.Errorf("pin %d claimed", n)
	}
	f.claimed[n] = true
	return &memPin{num: n}, nil
}

func (f *memPins) Release(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, n)
	f.released = append(f.released, n)
}

type noBuses struct{}

func (noBuses) ByIndex(n int) (drivers.I2C, error) { return nil, fmt.Errorf("no bus %d", n) }

// testclock builds a scriptAdaptor supplied through testAdaptorHook and
// claims pin 5 so teardown accounting is observable.
var (
	testHookMu      sync.Mutex
	testAdaptorHook func(id string) Adaptor
)

func setAdaptorHook(f func(id string) Adaptor) {
	testHookMu.Lock()
	testAdaptorHook = f
	testHookMu.Unlock()
}

type testBuilder struct{}

func (testBuilder) Build(in BuildInput) (BuildOutput, error) {
	if _, err := in.Pins.ByNumber(5); err != nil {
		return BuildOutput{}, err
	}
	testHookMu.Lock()
	hook := testAdaptorHook
	testHookMu.Unlock()
	return BuildOutput{Adaptor: hook(in.DeviceID)}, nil
}

func init() {
	RegisterBuilder("testclock", testBuilder{})
}

// ---- helpers ----

func waitMsg(t *testing.T, sub *bus.Subscription) *bus.Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no message on %v within deadline", sub.Pattern())
		return nil
	}
}

func startHAL(t *testing.T, ad *scriptAdaptor) (*bus.Bus, *bus.Connection) {
	t.Helper()
	setAdaptorHook(func(id string) Adaptor {
		ad.id = id
		return ad
	})

	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Run(ctx, b.NewConnection("hal"), newMemPins(), noBuses{})

	cli := b.NewConnection("test")
	infoSub := cli.Subscribe(bus.T("hal", "capability", "clock", 0, "info"))
	cli.Publish(cli.NewMessage(bus.T("config", "hal"), HALConfig{
		Version: 1,
		Devices: []DevCfg{{ID: "rtc0", Type: "testclock", PollMS: -1}},
	}, true))

	info := waitMsg(t, infoSub)
	m, ok := info.Payload.(map[string]any)
	if !ok || m["device"] != "rtc0" {
		t.Fatalf("bad capability info: %+v", info.Payload)
	}
	infoSub.Unsubscribe()
	return b, cli
}

func ctrl(cli *bus.Connection, method string, payload any, replyTo bus.Topic) *bus.Message {
	msg := cli.NewMessage(bus.T("hal", "capability", "clock", 0, "control", method), payload, false)
	msg.ReplyTo = replyTo
	return msg
}

// ---- tests ----

func TestServiceReadNowPublishesValue(t *testing.T) {
	ad := &scriptAdaptor{samples: []Sample{{
		Kind:    "clock",
		CapIdx:  0,
		Payload: types.ClockValue{Hour: 7, Minute: 8, Second: 9},
	}}}
	_, cli := startHAL(t, ad)

	valSub := cli.Subscribe(bus.T("hal", "capability", "clock", 0, "value"))
	replySub := cli.Subscribe(bus.T("test", "reply"))

	cli.Publish(ctrl(cli, "read_now", nil, bus.T("test", "reply")))

	rep := waitMsg(t, replySub)
	if m, _ := rep.Payload.(map[string]any); m["ok"] != true {
		t.Fatalf("read_now reply: %+v", rep.Payload)
	}

	val := waitMsg(t, valSub)
	v, ok := val.Payload.(types.ClockValue)
	if !ok || v.Hour != 7 || v.Minute != 8 || v.Second != 9 {
		t.Fatalf("value: %+v", val.Payload)
	}
}

func TestServiceControlRoutedToAdaptor(t *testing.T) {
	ad := &scriptAdaptor{}
	_, cli := startHAL(t, ad)

	replySub := cli.Subscribe(bus.T("test", "reply"))
	cli.Publish(ctrl(cli, "frobnicate", nil, bus.T("test", "reply")))

	rep := waitMsg(t, replySub)
	m, _ := rep.Payload.(map[string]any)
	if m["ok"] != false || m["code"] != "unsupported" {
		t.Fatalf("reply: %+v", rep.Payload)
	}
}

func TestServiceUnknownCapability(t *testing.T) {
	ad := &scriptAdaptor{}
	_, cli := startHAL(t, ad)

	replySub := cli.Subscribe(bus.T("test", "reply"))
	msg := cli.NewMessage(bus.T("hal", "capability", "clock", 9, "control", "read_now"), nil, false)
	msg.ReplyTo = bus.T("test", "reply")
	cli.Publish(msg)

	rep := waitMsg(t, replySub)
	m, _ := rep.Payload.(map[string]any)
	if m["code"] != "unknown_capability" {
		t.Fatalf("reply: %+v", rep.Payload)
	}
}

func TestServiceSetRateValidation(t *testing.T) {
	ad := &scriptAdaptor{}
	_, cli := startHAL(t, ad)

	replySub := cli.Subscribe(bus.T("test", "reply"))
	cli.Publish(ctrl(cli, "set_rate", map[string]any{}, bus.T("test", "reply")))

	rep := waitMsg(t, replySub)
	m, _ := rep.Payload.(map[string]any)
	if m["code"] != "invalid_params" {
		t.Fatalf("reply: %+v", rep.Payload)
	}

	// A sane rate is clamped into range and acknowledged.
	cli.Publish(ctrl(cli, "set_rate", map[string]any{"ms": 50}, bus.T("test", "reply")))
	rep = waitMsg(t, replySub)
	m, _ = rep.Payload.(map[string]any)
	if m["ok"] != true || m["ms"] != minPollMS {
		t.Fatalf("clamped reply: %+v", rep.Payload)
	}
}

func TestServiceBackgroundPolling(t *testing.T) {
	ad := &scriptAdaptor{samples: []Sample{{
		Kind:    "clock",
		CapIdx:  0,
		Payload: types.ClockValue{Hour: 1},
	}}}
	setAdaptorHook(func(id string) Adaptor {
		ad.id = id
		return ad
	})

	b := bus.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Run(ctx, b.NewConnection("hal"), newMemPins(), noBuses{})

	cli := b.NewConnection("test")
	valSub := cli.Subscribe(bus.T("hal", "capability", "clock", 0, "value"))
	// PollMS below the floor is clamped up to minPollMS.
	cli.Publish(cli.NewMessage(bus.T("config", "hal"), HALConfig{
		Version: 1,
		Devices: []DevCfg{{ID: "rtc0", Type: "testclock", PollMS: 1}},
	}, true))

	waitMsg(t, valSub)
	waitMsg(t, valSub)
	if ad.collectCount() < 2 {
		t.Fatalf("collects = %d, want >= 2", ad.collectCount())
	}
}

func TestServiceRejectsStaleConfigVersion(t *testing.T) {
	ad := &scriptAdaptor{}
	_, cli := startHAL(t, ad)

	stateSub := cli.Subscribe(bus.T("hal", "state"))
	// Retained replay may still hold the pre-config state; wait until the
	// applied version shows up.
	m, _ := waitMsg(t, stateSub).Payload.(map[string]any)
	for m["version"] != 1 {
		m, _ = waitMsg(t, stateSub).Payload.(map[string]any)
	}

	// Same version again: ignored, no teardown/rebuild.
	cli.Publish(cli.NewMessage(bus.T("config", "hal"), HALConfig{
		Version: 1,
		Devices: []DevCfg{{ID: "other", Type: "testclock"}},
	}, true))

	replySub := cli.Subscribe(bus.T("test", "reply"))
	cli.Publish(ctrl(cli, "read_now", nil, bus.T("test", "reply")))
	rep := waitMsg(t, replySub)
	if rm, _ := rep.Payload.(map[string]any); rm["ok"] != true {
		t.Fatalf("device lost after stale config: %+v", rep.Payload)
	}
}
