package util

import (
	"time"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// Clock yields local wall-clock time as UTC shifted by a fixed offset.
type Clock struct {
	Offset time.Duration
	Now    func() time.Time
}

// NewClock returns a clock for a fractional hour offset from UTC.
func NewClock(offsetHours float64) Clock {
	return Clock{Offset: time.Duration(offsetHours * float64(time.Hour)), Now: time.Now}
}

// Local returns the current local time. The location is kept as UTC so that
// Hour and Format reflect the shifted wall clock.
func (c Clock) Local() time.Time {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Add(c.Offset)
}

// Unix returns the current Unix timestamp.
func (c Clock) Unix() int64 {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return now().Unix()
}

// Today returns the local date formatted with models.DayLayout.
func (c Clock) Today() string {
	return c.Local().Format(models.DayLayout)
}
