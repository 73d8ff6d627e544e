package snipe

import (
	"context"
	"time"

	"github.com/example/resy-sniper/internal/reservation"
)

// ProbeFunc performs one availability lookup. It must return an error, not
// an empty slice, when nothing usable was found.
type ProbeFunc func(ctx context.Context, params reservation.TargetParameters) ([]reservation.Slot, error)

// Outcome is the terminal result of one attempt. Exactly one of Slots
// (non-empty) or Failure is set.
type Outcome struct {
	Attempt    int // launch index, 0-based
	LaunchedAt time.Time
	Duration   time.Duration

	Slots   []reservation.Slot
	Failure *Failure
}

func (o Outcome) Succeeded() bool {
	return o.Failure == nil && len(o.Slots) > 0
}

type attemptKey struct{}

// AttemptFromContext returns the launch index of the attempt a probe is
// running under.
func AttemptFromContext(ctx context.Context) (int, bool) {
	i, ok := ctx.Value(attemptKey{}).(int)
	return i, ok
}

func withAttempt(ctx context.Context, i int) context.Context {
	return context.WithValue(ctx, attemptKey{}, i)
}
