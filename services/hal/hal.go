// Package hal owns all hardware access. Devices are declared in a
// retained config message, built through the type registry, and
// surfaced on the bus as numbered capabilities:
//
//	hal/state                                    retained service state
//	hal/capability/<kind>/<idx>/info             retained capability info
//	hal/capability/<kind>/<idx>/value            published samples
//	hal/capability/<kind>/<idx>/control/<method> request/reply control
package hal

import (
	"context"
	"errors"
	"time"

	"clockcode-go/bus"
	"clockcode-go/errcode"
	"clockcode-go/x/mathx"
)

const (
	minPollMS = 100
	maxPollMS = 3_600_000
)

type capKey struct {
	kind string
	idx  int
}

type devEntry struct {
	cfg      DevCfg
	adaptor  Adaptor
	caps     []capKey // adaptor capability i -> public address
	pins     []int
	pollEach time.Duration
	nextDue  time.Time
}

type service struct {
	conn    *bus.Connection
	pins    PinFactory
	buses   I2CBusFactory
	worker  *measureWorker
	results chan Result
	poll    *time.Timer

	version  int
	devices  map[string]*devEntry
	capToDev map[capKey]string
	nextIdx  map[string]int
}

// Run drives the HAL until ctx is cancelled.
func Run(ctx context.Context, conn *bus.Connection, pins PinFactory, buses I2CBusFactory) {
	s := &service{
		conn:     conn,
		pins:     pins,
		buses:    buses,
		results:  make(chan Result, 8),
		devices:  map[string]*devEntry{},
		capToDev: map[capKey]string{},
		nextIdx:  map[string]int{},
	}
	s.worker = newMeasureWorker(WorkerConfig{SubmitWait: 200 * time.Millisecond}, s.results)
	s.worker.Start(ctx)
	s.loop(ctx)
}

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.T("config", "hal"))
	ctrlSub := s.conn.Subscribe(bus.T("hal", "capability", "+", "+", "control", "+"))
	defer s.conn.Disconnect()

	s.publishState("starting")

	s.poll = time.NewTimer(time.Hour)
	s.poll.Stop()
	defer s.poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-cfgSub.Channel():
			var cfg HALConfig
			if err := decodeInto(msg.Payload, &cfg); err != nil {
				println("Error: hal: bad config:", err.Error())
				continue
			}
			s.applyConfig(ctx, cfg)
			s.rearm()

		case msg := <-ctrlSub.Channel():
			s.handleControl(ctx, msg)

		case <-s.poll.C:
			now := time.Now()
			for _, d := range s.devices {
				if d.pollEach <= 0 || d.nextDue.After(now) {
					continue
				}
				d.nextDue = now.Add(d.pollEach)
				s.worker.Submit(MeasureReq{Adaptor: d.adaptor})
			}
			s.rearm()

		case res := <-s.results:
			s.publishResult(res)
		}
	}
}

// rearm sets the poll timer to the earliest nextDue across devices.
func (s *service) rearm() {
	s.poll.Stop()
	var next time.Time
	for _, d := range s.devices {
		if d.pollEach <= 0 {
			continue
		}
		if next.IsZero() || d.nextDue.Before(next) {
			next = d.nextDue
		}
	}
	if next.IsZero() {
		return
	}
	wait := time.Until(next)
	if wait < 0 {
		wait = 0
	}
	s.poll.Reset(wait)
}

// ------------------------
// Config
// ------------------------

func (s *service) applyConfig(ctx context.Context, cfg HALConfig) {
	if cfg.Version <= s.version {
		println("Info: hal: ignoring config version", cfg.Version)
		return
	}
	s.teardown()
	s.version = cfg.Version

	for _, dc := range cfg.Devices {
		if err := s.buildDevice(ctx, dc); err != nil {
			println("Error: hal: device", dc.ID, ":", err.Error())
		}
	}
	s.publishState("ready")
}

func (s *service) buildDevice(ctx context.Context, dc DevCfg) error {
	b, err := findBuilder(dc.Type)
	if err != nil {
		return err
	}
	pins := &claimingPins{inner: s.pins}
	out, err := b.Build(BuildInput{
		Ctx:      ctx,
		Pins:     pins,
		Buses:    s.buses,
		DeviceID: dc.ID,
		Type:     dc.Type,
		Params:   dc.Params,
	})
	if err != nil {
		pins.releaseAll()
		return err
	}

	d := &devEntry{cfg: dc, adaptor: out.Adaptor, pins: pins.claimed}
	d.pollEach = out.SampleEvery
	switch {
	case dc.PollMS > 0:
		d.pollEach = time.Duration(mathx.Clamp(dc.PollMS, minPollMS, maxPollMS)) * time.Millisecond
	case dc.PollMS < 0:
		d.pollEach = 0
	}
	if d.pollEach > 0 {
		d.nextDue = time.Now().Add(d.pollEach)
	}

	for _, ci := range out.Adaptor.Capabilities() {
		key := capKey{kind: ci.Kind, idx: s.nextIdx[ci.Kind]}
		s.nextIdx[ci.Kind]++
		d.caps = append(d.caps, key)
		s.capToDev[key] = dc.ID

		info := map[string]any{"device": dc.ID, "type": dc.Type}
		for k, v := range ci.Info {
			info[k] = v
		}
		s.conn.Publish(s.conn.NewMessage(
			bus.T("hal", "capability", key.kind, key.idx, "info"), info, true))
	}

	s.devices[dc.ID] = d
	println("Info: hal: built", dc.Type, "as", dc.ID)
	return nil
}

func (s *service) teardown() {
	for id, d := range s.devices {
		for _, key := range d.caps {
			// Clear the retained info so late subscribers do not see
			// capabilities from a previous config generation.
			s.conn.Publish(s.conn.NewMessage(
				bus.T("hal", "capability", key.kind, key.idx, "info"), nil, true))
			delete(s.capToDev, key)
		}
		for _, n := range d.pins {
			s.pins.Release(n)
		}
		delete(s.devices, id)
	}
	s.nextIdx = map[string]int{}
}

// ------------------------
// Control
// ------------------------

func (s *service) handleControl(ctx context.Context, msg *bus.Message) {
	if len(msg.Topic) != 6 {
		return
	}
	kind, _ := msg.Topic[2].(string)
	idx, ok := topicInt(msg.Topic[3])
	method, _ := msg.Topic[5].(string)
	if !ok || kind == "" || method == "" {
		return
	}

	devID, ok := s.capToDev[capKey{kind: kind, idx: idx}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability, "no such capability")
		return
	}
	d := s.devices[devID]

	switch method {
	case "read_now":
		if !s.worker.Submit(MeasureReq{Adaptor: d.adaptor, Prio: true}) {
			s.replyErr(msg, errcode.Busy, "measure queue full")
			return
		}
		s.reply(msg, map[string]any{"ok": true})

	case "set_rate":
		m, _ := msg.Payload.(map[string]any)
		ms, ok := asInt(m, "ms")
		if !ok {
			s.replyErr(msg, errcode.InvalidParams, "want {\"ms\": n}")
			return
		}
		if ms <= 0 {
			d.pollEach = 0
		} else {
			d.pollEach = time.Duration(mathx.Clamp(ms, minPollMS, maxPollMS)) * time.Millisecond
			d.nextDue = time.Now().Add(d.pollEach)
		}
		s.rearm()
		s.reply(msg, map[string]any{"ok": true, "ms": int(d.pollEach / time.Millisecond)})

	default:
		capIdx := s.localCapIdx(d, kind, idx)
		res, err := d.adaptor.Control(ctx, kind, capIdx, method, msg.Payload)
		if err != nil {
			s.replyErr(msg, codeOf(err), err.Error())
			return
		}
		if res == nil {
			res = map[string]any{"ok": true}
		}
		s.reply(msg, res)
	}
}

func (s *service) localCapIdx(d *devEntry, kind string, idx int) int {
	for i, key := range d.caps {
		if key.kind == kind && key.idx == idx {
			return i
		}
	}
	return 0
}

// ------------------------
// Publishing
// ------------------------

func (s *service) publishResult(res Result) {
	d, ok := s.devices[res.DeviceID]
	if !ok {
		return
	}
	if res.Err != nil {
		s.conn.Publish(s.conn.NewMessage(
			bus.T("hal", "device", res.DeviceID, "error"),
			map[string]any{"code": string(codeOf(res.Err)), "error": res.Err.Error()},
			false))
		return
	}
	for _, sm := range res.Samples {
		if sm.CapIdx < 0 || sm.CapIdx >= len(d.caps) {
			continue
		}
		key := d.caps[sm.CapIdx]
		payload := sm.Payload
		if payload == nil {
			m := map[string]any{}
			for _, r := range sm.Readings {
				m[r.Name] = r.Value
			}
			payload = m
		}
		s.conn.Publish(s.conn.NewMessage(
			bus.T("hal", "capability", key.kind, key.idx, "value"), payload, false))
	}
}

func (s *service) publishState(status string) {
	s.conn.Publish(s.conn.NewMessage(bus.T("hal", "state"), map[string]any{
		"status":  status,
		"version": s.version,
		"devices": len(s.devices),
	}, true))
}

func (s *service) reply(req *bus.Message, payload any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, payload, false)
}

func (s *service) replyErr(req *bus.Message, code errcode.Code, detail string) {
	s.reply(req, map[string]any{"ok": false, "code": string(code), "error": detail})
}

// codeOf maps adaptor and driver errors onto stable bus codes. Errors
// that carry no code of their own came up from the hardware path and
// land on the driver mapping, PinFault included.
func codeOf(err error) errcode.Code {
	if errors.Is(err, ErrUnsupported) {
		return errcode.Unsupported
	}
	if c := errcode.Of(err); c != errcode.Error {
		return c
	}
	return errcode.MapDriverErr(err)
}

func topicInt(tok any) (int, bool) {
	switch n := tok.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// claimingPins records which pins a builder takes so the service can
// hand them back on teardown.
type claimingPins struct {
	inner   PinFactory
	claimed []int
}

func (c *claimingPins) ByNumber(n int) (GPIOPin, error) {
	p, err := c.inner.ByNumber(n)
	if err != nil {
		return nil, err
	}
	c.claimed = append(c.claimed, n)
	return p, nil
}

func (c *claimingPins) Release(n int) {
	c.inner.Release(n)
	for i, m := range c.claimed {
		if m == n {
			c.claimed = append(c.claimed[:i], c.claimed[i+1:]...)
			break
		}
	}
}

func (c *claimingPins) releaseAll() {
	for _, n := range c.claimed {
		c.inner.Release(n)
	}
	c.claimed = nil
}
