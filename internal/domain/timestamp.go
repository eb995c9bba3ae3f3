package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Timestamp is a nullable instant, always held in UTC.
// Invalid means the source value was missing or could not be parsed.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// naive layouts carry no zone information and are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// NewTimestamp wraps t, normalizing it to UTC
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: ToUTC(t), Valid: true}
}

// ToUTC is the single ingestion-boundary conversion to a UTC instant.
// Zoned values are converted; values parsed without a zone are already UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ParseTimestamp coerces a raw provider value into a Timestamp.
// Length-1 sequences are unwrapped first; anything malformed yields an invalid Timestamp.
func ParseTimestamp(v any) Timestamp {
	switch val := v.(type) {
	case nil:
		return Timestamp{}
	case Timestamp:
		return val
	case time.Time:
		return NewTimestamp(val)
	case *time.Time:
		if val == nil {
			return Timestamp{}
		}
		return NewTimestamp(*val)
	case string:
		return parseTimestampString(val)
	case []string:
		if len(val) == 0 {
			return Timestamp{}
		}
		return parseTimestampString(val[0])
	case []any:
		if len(val) == 0 {
			return Timestamp{}
		}
		return ParseTimestamp(val[0])
	default:
		return Timestamp{}
	}
}

func parseTimestampString(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t)
		}
	}
	return Timestamp{}
}

// MarshalJSON encodes an RFC3339 string or null
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// UnmarshalJSON never fails on malformed input; it marks the timestamp invalid instead
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		*t = Timestamp{}
		return nil
	}
	*t = ParseTimestamp(raw)
	return nil
}
