package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// EpochMillis is a timestamp serialized as milliseconds since the Unix epoch
type EpochMillis int64

// ToEpochMillis converts t to milliseconds since the epoch
func ToEpochMillis(t time.Time) EpochMillis {
	return EpochMillis(t.UnixMilli())
}

// Time converts back to a UTC time.Time
func (m EpochMillis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

// UnmarshalJSON accepts integral and fractional JSON numbers; some stores emit floats.
func (m *EpochMillis) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("epoch millis: %w", err)
	}
	*m = EpochMillis(math.Round(f))
	return nil
}
