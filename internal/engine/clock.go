package engine

import (
	"time"

	"github.com/pkg/errors"
)

// Clock is the engine's virtual "now". It only moves forward, in whole-day
// increments, and replaces wall-clock time for every maturity and accrual
// calculation.
type Clock struct {
	now time.Time
}

// NewClock creates a clock starting at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by the given number of days.
// Non-positive increments are rejected and leave the clock unchanged.
func (c *Clock) Advance(days int) error {
	if days <= 0 {
		return errors.Errorf("days must be positive, got %d", days)
	}

	c.now = c.now.Add(time.Duration(days) * 24 * time.Hour)
	return nil
}
