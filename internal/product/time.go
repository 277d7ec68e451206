package product

import (
	"fmt"
	"time"
)

// TimeLayout is the only timestamp format used on the wire and in product
// properties. Times are always rendered in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Truncate brings t to wire precision so that values survive an
// encode/decode cycle unchanged.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
