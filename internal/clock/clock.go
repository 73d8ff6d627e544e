// Package clock abstracts the wall clock so wake-up logic can be tested.
package clock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Clock is the source of the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

var _ Clock = Real{}

// Fixed always returns the same instant.
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// SleepUntil blocks until c reports a time at or past deadline, or until ctx
// is done. A deadline in the past returns nil immediately, even when ctx is
// already done.
func SleepUntil(ctx context.Context, c Clock, deadline time.Time) error {
	d := deadline.Sub(c.Now())
	if d <= 0 {
		return nil
	}

	zerolog.Ctx(ctx).Info().
		Time("until", deadline).
		Dur("sleep", d).
		Msg("sleeping until wake time")

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
