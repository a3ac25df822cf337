package hal

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HALConfig arrives retained on config/hal. Version must move forward;
// stale or replayed configs are ignored.
type HALConfig struct {
	Version int      `json:"version"`
	Devices []DevCfg `json:"devices"`
}

type DevCfg struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Params any    `json:"params,omitempty"`
	// PollMS overrides the builder's sampling interval; 0 keeps the
	// builder default, -1 disables background sampling.
	PollMS int `json:"poll_ms,omitempty"`
}

// decodeInto re-marshals an any-typed payload into dst. The bus is
// in-process so payloads arrive as native structs or generic maps;
// going through JSON gives both one decode path.
func decodeInto(payload, dst any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("hal: encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("hal: decode payload: %w", err)
	}
	return nil
}

// DecodeParams is decodeInto for device builders, which live outside
// this package but receive the raw params value from DevCfg.
func DecodeParams(params, dst any) error {
	return decodeInto(params, dst)
}

// asInt pulls an integer field out of a generic payload map.
func asInt(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func asBool(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
