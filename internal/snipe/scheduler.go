package snipe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/resy-sniper/internal/reservation"
)

// Observer receives attempt lifecycle events. Implementations must be safe
// for concurrent use; AttemptFinished is called from attempt goroutines.
type Observer interface {
	AttemptLaunched(attempt int)
	AttemptFinished(o Outcome)
}

// Sniper launches concurrent probes at a fixed cadence and races them.
type Sniper struct {
	Probe    ProbeFunc
	Policy   RetryPolicy
	Observer Observer // optional
}

// RunAttempts launches Policy.MaxAttempts probes, attempt i no earlier than
// i*Policy.Interval after the call, and blocks until every launched attempt
// is terminal. It never fails: the result always has one outcome per
// attempt, in launch order.
//
// In-flight probes are not canceled when ctx is; ctx only stops further
// launches, and the unlaunched attempts are recorded as infrastructure
// failures.
func (s *Sniper) RunAttempts(ctx context.Context, params reservation.TargetParameters) []Outcome {
	n := s.Policy.MaxAttempts
	if n <= 0 {
		return nil
	}
	log := zerolog.Ctx(ctx)
	outcomes := make([]Outcome, n)
	probeCtx := context.WithoutCancel(ctx)

	var tick <-chan time.Time
	if s.Policy.Interval > 0 {
		t := time.NewTicker(s.Policy.Interval)
		defer t.Stop()
		tick = t.C
	}

	var g errgroup.Group
	launched := 0
	for i := 0; i < n; i++ {
		if i > 0 && tick != nil {
			select {
			case <-ctx.Done():
			case <-tick:
			}
		}
		if ctx.Err() != nil {
			break
		}

		at := time.Now()
		log.Debug().Int("attempt", i).Time("at", at).Msg("launching attempt")
		if s.Observer != nil {
			s.Observer.AttemptLaunched(i)
		}
		g.Go(func() error {
			o := s.attempt(withAttempt(probeCtx, i), i, at, params)
			outcomes[i] = o
			s.finished(log, o)
			return nil
		})
		launched++
	}

	for i := launched; i < n; i++ {
		o := Outcome{
			Attempt: i,
			Failure: &Failure{Kind: KindInfrastructure, Msg: "attempt not launched", Err: context.Cause(ctx)},
		}
		outcomes[i] = o
		s.finished(log, o)
	}

	_ = g.Wait()
	return outcomes
}

// attempt runs one probe. params is a copy owned by this attempt.
func (s *Sniper) attempt(ctx context.Context, i int, at time.Time, params reservation.TargetParameters) Outcome {
	o := Outcome{Attempt: i, LaunchedAt: at}
	if s.Policy.AttemptTimeout <= 0 {
		o.Slots, o.Failure = s.probe(ctx, i, params)
		o.Duration = time.Since(at)
		return o
	}

	type result struct {
		slots   []reservation.Slot
		failure *Failure
	}
	done := make(chan result, 1)
	go func() {
		slots, f := s.probe(ctx, i, params)
		done <- result{slots: slots, failure: f}
	}()

	timer := time.NewTimer(s.Policy.AttemptTimeout)
	defer timer.Stop()
	select {
	case r := <-done:
		o.Slots, o.Failure = r.slots, r.failure
	case <-timer.C:
		// the probe goroutine is abandoned; its result is dropped
		o.Failure = Infrastructuref("attempt %d timed out after %s", i, s.Policy.AttemptTimeout)
	}
	o.Duration = time.Since(at)
	return o
}

func (s *Sniper) probe(ctx context.Context, i int, params reservation.TargetParameters) (slots []reservation.Slot, f *Failure) {
	defer func() {
		if r := recover(); r != nil {
			slots = nil
			f = &Failure{Kind: KindInfrastructure, Msg: fmt.Sprintf("attempt %d panicked: %v", i, r)}
		}
	}()

	slots, err := s.Probe(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(slots) == 0 {
		return nil, &Failure{Kind: KindDomain, Msg: "probe returned no slots"}
	}
	return slots, nil
}

func (s *Sniper) finished(log *zerolog.Logger, o Outcome) {
	if o.Succeeded() {
		log.Info().Int("attempt", o.Attempt).Int("slots", len(o.Slots)).Dur("took", o.Duration).Msg("attempt found slots")
	} else {
		log.Info().Int("attempt", o.Attempt).Stringer("kind", o.Failure.Kind).Err(o.Failure).Dur("took", o.Duration).Msg("attempt failed")
	}
	if s.Observer != nil {
		s.Observer.AttemptFinished(o)
	}
}
