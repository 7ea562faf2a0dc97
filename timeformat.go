package ormlite

import (
	"fmt"
	"time"
)

// FormatTime renders t as the driver value a ColumnDescriptor.Get should
// return for a time.Time field, per format. Descriptor builders call this
// from their Get function; it is not invoked by the ORM core itself,
// since Get/Set never receive the owning Connection.
func FormatTime(t time.Time, format TimeFormat) any {
	switch format {
	case TimeFormatUnixTicks:
		return t.UnixNano()
	default:
		return t.UTC().Format(time.RFC3339Nano)
	}
}

// ParseTime decodes a driver value previously produced by FormatTime.
// Descriptor builders call this from their Set function.
func ParseTime(raw any, format TimeFormat) (time.Time, error) {
	if raw == nil {
		return time.Time{}, nil
	}

	switch format {
	case TimeFormatUnixTicks:
		switch v := raw.(type) {
		case int64:
			return time.Unix(0, v).UTC(), nil
		default:
			return time.Time{}, fmt.Errorf("ParseTime: expected int64 for TimeFormatUnixTicks, got %T", raw)
		}

	default:
		s, ok := raw.(string)
		if !ok {
			return time.Time{}, fmt.Errorf("ParseTime: expected string for TimeFormatISO8601, got %T", raw)
		}

		return time.Parse(time.RFC3339Nano, s)
	}
}
