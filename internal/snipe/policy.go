package snipe

import (
	"fmt"
	"time"
)

// RetryPolicy controls how many attempts are launched and how far apart.
type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int

	// AttemptTimeout bounds how long the scheduler waits for one attempt.
	// Zero waits indefinitely.
	AttemptTimeout time.Duration
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0 (got %d)", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("interval must be >= 0 (got %s)", p.Interval)
	}
	if p.AttemptTimeout < 0 {
		return fmt.Errorf("attempt timeout must be >= 0 (got %s)", p.AttemptTimeout)
	}
	return nil
}

// Span is the time between the first and the last launch.
func (p RetryPolicy) Span() time.Duration {
	if p.MaxAttempts < 2 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Interval
}
