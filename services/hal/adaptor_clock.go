package hal

import (
	"context"
	"time"

	"clockcode-go/drivers/ds1302"
	"clockcode-go/errcode"
	"clockcode-go/types"
)

// Clock is the slice of the DS1302 driver the adaptor needs. Taking an
// interface keeps the adaptor testable without wiggling real pins.
type Clock interface {
	ReadTime() (ds1302.TimeOfDay, error)
	SetTime(ds1302.TimeOfDay) error
	ReadSeconds() (uint8, error)
	WriteSeconds(sec uint8, halt bool) error
	Halted() (bool, error)
}

// clockAdaptor exposes one RTC as a "clock" capability. Registers are
// directly readable, so Trigger never needs a settle wait.
type clockAdaptor struct {
	id  string
	dev Clock
}

func NewClockAdaptor(id string, dev Clock) Adaptor {
	return &clockAdaptor{id: id, dev: dev}
}

func (a *clockAdaptor) ID() string { return a.id }

func (a *clockAdaptor) Capabilities() []CapInfo {
	return []CapInfo{{
		Kind: string(types.KindClock),
		Info: map[string]any{"driver": "ds1302", "schema_version": 1},
	}}
}

func (a *clockAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *clockAdaptor) Collect(ctx context.Context) ([]Sample, error) {
	tod, err := a.dev.ReadTime()
	if err != nil {
		return nil, err
	}
	halted, err := a.dev.Halted()
	if err != nil {
		return nil, err
	}
	v := types.ClockValue{
		Hour:   tod.Hour,
		Minute: tod.Minute,
		Second: tod.Second,
		Halted: halted,
		TsMs:   time.Now().UnixMilli(),
	}
	return []Sample{{
		Kind:    string(types.KindClock),
		CapIdx:  0,
		Payload: v,
		Readings: []Reading{
			{Name: "hour", Value: v.Hour},
			{Name: "minute", Value: v.Minute},
			{Name: "second", Value: v.Second},
			{Name: "halted", Value: v.Halted},
		},
	}}, nil
}

func (a *clockAdaptor) Control(ctx context.Context, kind string, capIdx int, method string, payload any) (any, error) {
	if kind != string(types.KindClock) {
		return nil, ErrUnsupported
	}
	switch method {
	case "set_time":
		var req types.SetTimeRequest
		if err := decodeInto(payload, &req); err != nil {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "set_time", Err: err}
		}
		err := a.dev.SetTime(ds1302.TimeOfDay{
			Hour:   req.Hour,
			Minute: req.Minute,
			Second: req.Second,
		})
		if err != nil {
			return nil, err
		}
		return types.OKReply{OK: true}, nil

	case "halt":
		m, _ := payload.(map[string]any)
		on, ok := asBool(m, "on")
		if !ok {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "halt", Msg: "want {\"on\": bool}"}
		}
		sec, err := a.dev.ReadSeconds()
		if err != nil {
			return nil, err
		}
		if err := a.dev.WriteSeconds(sec, on); err != nil {
			return nil, err
		}
		return types.OKReply{OK: true}, nil

	default:
		return nil, ErrUnsupported
	}
}

func (a *clockAdaptor) RetryInterval() time.Duration { return 0 }
