package sensors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relvacode/iso8601"
)

// TimestampLayout matches JavaScript's Date.toISOString (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// StampTime rounds t up to the next whole millisecond so the rendered stamp
// is never earlier than t. Monotonic clock readings are dropped.
func StampTime(t time.Time) time.Time {
	t = t.Round(0)
	if rem := t.Sub(t.Truncate(time.Millisecond)); rem > 0 {
		t = t.Add(time.Millisecond - rem)
	}
	return t
}

// FormatTimestamp renders t the way it appears in published payloads.
func FormatTimestamp(t time.Time) string {
	return StampTime(t).UTC().Format(TimestampLayout)
}

// BuildPayload builds the JSON payload for a state topic: every record field
// plus a generation timestamp rounded up by StampTime.
func BuildPayload(r Record, ts time.Time) ([]byte, error) {
	state := r.Values()
	state[TimestampField] = FormatTimestamp(ts)

	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state payload: %w", err)
	}
	return payload, nil
}

// ParsePayload decodes a state payload published for schema s. Every declared
// field must be present; constant fields must carry their declared value.
func ParsePayload(s *Schema, payload []byte) (Record, time.Time, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return Record{}, time.Time{}, fmt.Errorf("failed to unmarshal state payload: %w", err)
	}

	rawTS, ok := raw[TimestampField].(string)
	if !ok {
		return Record{}, time.Time{}, fmt.Errorf("payload has no %s: %w", TimestampField, ErrInvalidValue)
	}
	ts, err := iso8601.ParseString(rawTS)
	if err != nil {
		return Record{}, time.Time{}, fmt.Errorf("invalid %s %q: %w", TimestampField, rawTS, err)
	}

	values := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := raw[f.Name]
		if !ok {
			return Record{}, time.Time{}, fmt.Errorf("%s payload missing %q: %w", s.Name, f.Name, ErrInvalidValue)
		}
		if f.Constant {
			if v != f.Default {
				return Record{}, time.Time{}, fmt.Errorf("%s.%s = %v, want %v: %w", s.Name, f.Name, v, f.Default, ErrInvalidValue)
			}
			values[f.Name] = f.Default
			continue
		}
		cv, err := coerceValue(f, v)
		if err != nil {
			return Record{}, time.Time{}, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
		}
		values[f.Name] = cv
	}

	for k := range raw {
		if k == TimestampField {
			continue
		}
		if _, ok := s.Field(k); !ok {
			return Record{}, time.Time{}, fmt.Errorf("%s payload has undeclared %q: %w", s.Name, k, ErrUnknownField)
		}
	}

	return Record{values: values}, ts, nil
}
