package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Known event types carried on the mining streams. Unknown values are
// passed through untouched so new pool events don't break old consumers.
const (
	EventShareSubmitted = "share_submitted"
	EventShareBestDiff  = "share_best_diff"
	EventBlockFound     = "block_found"
)

// EventEnvelope is the immutable record published on the durable event
// streams: {event, ts, source, data}. The same record may be consumed by
// several independent consumer groups.
type EventEnvelope struct {
	Event     string                 `json:"event"`
	Timestamp float64                `json:"ts"` // unix seconds
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
}

// Time converts the float unix timestamp into a UTC time.
func (e *EventEnvelope) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Address returns the miner address carried in the payload, or "".
func (e *EventEnvelope) Address() string {
	for _, key := range []string{"address", "btc_address", "worker_address"} {
		if v, ok := e.Data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Difficulty returns the share difficulty from the payload, tolerating
// both float and string encodings (producers differ).
func (e *EventEnvelope) Difficulty() float64 {
	switch v := e.Data["difficulty"].(type) {
	case float64:
		return v
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return 0
}

// BlockHeight returns the block height for block_found payloads.
func (e *EventEnvelope) BlockHeight() int64 {
	switch v := e.Data["height"].(type) {
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return 0
}

// ParseEnvelope decodes a raw stream record into an EventEnvelope.
// Producers write either a single "payload" field holding the whole
// envelope as JSON, or flat fields (event, ts, source, data) — both
// encodings must decode to the same envelope.
func ParseEnvelope(values map[string]interface{}) (*EventEnvelope, error) {
	if raw, ok := values["payload"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("payload field is not a string")
		}
		var env EventEnvelope
		if err := json.Unmarshal([]byte(s), &env); err != nil {
			return nil, fmt.Errorf("failed to decode payload JSON: %w", err)
		}
		if env.Event == "" {
			return nil, fmt.Errorf("payload missing event field")
		}
		if env.Data == nil {
			env.Data = map[string]interface{}{}
		}
		return &env, nil
	}

	// Flat encoding: every value arrives as a string.
	env := &EventEnvelope{Data: map[string]interface{}{}}
	if v, ok := values["event"].(string); ok {
		env.Event = v
	}
	if env.Event == "" {
		return nil, fmt.Errorf("record missing event field")
	}
	if v, ok := values["source"].(string); ok {
		env.Source = v
	}
	if v, ok := values["ts"].(string); ok {
		fmt.Sscanf(v, "%f", &env.Timestamp)
	}
	if v, ok := values["data"].(string); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &env.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data JSON: %w", err)
		}
	}
	return env, nil
}
