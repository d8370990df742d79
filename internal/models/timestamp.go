package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp accepts RFC 3339 strings, a few common variants, Unix
// milliseconds and {"seconds": n} objects. Anything else decodes to the zero
// time instead of failing the whole record.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
	case '{':
		var obj struct {
			Seconds       int64 `json:"seconds"`
			LegacySeconds int64 `json:"_seconds"`
			Nanoseconds   int64 `json:"nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err == nil {
			secs := obj.Seconds
			if secs == 0 {
				secs = obj.LegacySeconds
			}
			if secs != 0 {
				t.Time = time.Unix(secs, obj.Nanoseconds).UTC()
			}
		}
	default:
		if ms, err := strconv.ParseFloat(string(data), 64); err == nil {
			t.Time = time.UnixMilli(int64(ms)).UTC()
		}
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
