package snipe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/reservation"
)

var errEmpty = errors.New("empty")

func testParams() reservation.TargetParameters {
	return reservation.TargetParameters{
		VenueID:      1505,
		Date:         time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		EarliestTime: 19 * time.Hour,
		PartySize:    2,
	}
}

func testSlot(h int) reservation.Slot {
	return reservation.Slot{MaxSize: 2, Start: time.Date(2026, 11, 1, h, 0, 0, 0, time.UTC), ConfigToken: "cfg"}
}

type step func(ctx context.Context) ([]reservation.Slot, error)

// scripted returns a probe that runs steps[attempt]; unscripted attempts
// fail with errEmpty.
func scripted(steps map[int]step) ProbeFunc {
	return func(ctx context.Context, _ reservation.TargetParameters) ([]reservation.Slot, error) {
		i, ok := AttemptFromContext(ctx)
		if !ok {
			panic("probe called without attempt index")
		}
		if st, ok := steps[i]; ok {
			return st(ctx)
		}
		return nil, errEmpty
	}
}

func found(slots ...reservation.Slot) step {
	return func(context.Context) ([]reservation.Slot, error) { return slots, nil }
}

func failing(err error) step {
	return func(context.Context) ([]reservation.Slot, error) { return nil, err }
}

func TestRunAttempts_OneOutcomePerAttempt(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 3, 8} {
		s := &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: n}}
		outcomes := s.RunAttempts(context.Background(), testParams())

		require.Len(t, outcomes, n)
		for i, o := range outcomes {
			assert.Equal(t, i, o.Attempt)
			require.NotNil(t, o.Failure)
			assert.Equal(t, KindDomain, o.Failure.Kind)
		}
	}
}

func TestRunAttempts_PanicIsInfrastructureFailure(t *testing.T) {
	t.Parallel()

	s := &Sniper{
		Probe: scripted(map[int]step{
			0: func(context.Context) ([]reservation.Slot, error) { panic("boom") },
			1: found(testSlot(19)),
		}),
		Policy: RetryPolicy{MaxAttempts: 2, Interval: time.Millisecond},
	}

	outcomes := s.RunAttempts(context.Background(), testParams())
	require.Len(t, outcomes, 2)

	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, KindInfrastructure, outcomes[0].Failure.Kind)
	assert.Contains(t, outcomes[0].Failure.Error(), "boom")
	assert.True(t, outcomes[1].Succeeded())
}

func TestRunAttempts_EmptySuccessIsDomainFailure(t *testing.T) {
	t.Parallel()

	s := &Sniper{
		Probe:  scripted(map[int]step{0: found()}),
		Policy: RetryPolicy{MaxAttempts: 1},
	}

	outcomes := s.RunAttempts(context.Background(), testParams())
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Succeeded())
	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, KindDomain, outcomes[0].Failure.Kind)
	assert.Empty(t, outcomes[0].Slots)
}

func TestRunAttempts_ProbeFailureKeepsKind(t *testing.T) {
	t.Parallel()

	s := &Sniper{
		Probe: scripted(map[int]step{
			0: failing(Infrastructuref("connection pool closed")),
			1: failing(&Failure{Msg: "unknown kind"}),
		}),
		Policy: RetryPolicy{MaxAttempts: 2},
	}

	outcomes := s.RunAttempts(context.Background(), testParams())
	assert.Equal(t, KindInfrastructure, outcomes[0].Failure.Kind)
	assert.Equal(t, KindDomain, outcomes[1].Failure.Kind)
}

func TestRunAttempts_LaunchCadence(t *testing.T) {
	t.Parallel()

	const interval = 20 * time.Millisecond
	release := make(chan struct{})
	var calls atomic.Int32
	s := &Sniper{
		// every probe blocks until all four have launched
		Probe: func(ctx context.Context, _ reservation.TargetParameters) ([]reservation.Slot, error) {
			if calls.Add(1) == 4 {
				close(release)
			}
			<-release
			return nil, errEmpty
		},
		Policy: RetryPolicy{MaxAttempts: 4, Interval: interval},
	}

	start := time.Now()
	outcomes := s.RunAttempts(context.Background(), testParams())
	require.Len(t, outcomes, 4)

	for i, o := range outcomes {
		assert.GreaterOrEqual(t, o.LaunchedAt.Sub(start), time.Duration(i)*interval, "attempt %d launched early", i)
	}
	for i := 1; i < len(outcomes); i++ {
		assert.True(t, outcomes[i].LaunchedAt.After(outcomes[i-1].LaunchedAt))
	}
}

func TestRunAttempts_WaitsForEveryAttempt(t *testing.T) {
	t.Parallel()

	var slowDone atomic.Bool
	s := &Sniper{
		Probe: scripted(map[int]step{
			0: found(testSlot(19)),
			1: func(context.Context) ([]reservation.Slot, error) {
				time.Sleep(50 * time.Millisecond)
				slowDone.Store(true)
				return nil, errEmpty
			},
		}),
		Policy: RetryPolicy{MaxAttempts: 2},
	}

	outcomes := s.RunAttempts(context.Background(), testParams())
	assert.True(t, slowDone.Load(), "returned before the slow attempt finished")
	assert.True(t, outcomes[0].Succeeded())
	require.NotNil(t, outcomes[1].Failure)
	assert.GreaterOrEqual(t, outcomes[1].Duration, 50*time.Millisecond)
}

func TestRunAttempts_AttemptTimeout(t *testing.T) {
	t.Parallel()

	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	s := &Sniper{
		Probe: scripted(map[int]step{
			0: func(context.Context) ([]reservation.Slot, error) {
				<-hang
				return nil, errEmpty
			},
			1: found(testSlot(20)),
		}),
		Policy: RetryPolicy{MaxAttempts: 2, AttemptTimeout: 20 * time.Millisecond},
	}

	outcomes := s.RunAttempts(context.Background(), testParams())
	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, KindInfrastructure, outcomes[0].Failure.Kind)
	assert.Contains(t, outcomes[0].Failure.Error(), "timed out")
	assert.True(t, outcomes[1].Succeeded())
}

func TestRunAttempts_CanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s := &Sniper{
		Probe: func(context.Context, reservation.TargetParameters) ([]reservation.Slot, error) {
			calls.Add(1)
			return nil, errEmpty
		},
		Policy: RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond},
	}

	outcomes := s.RunAttempts(ctx, testParams())
	require.Len(t, outcomes, 3)
	assert.Zero(t, calls.Load())
	for i, o := range outcomes {
		assert.Equal(t, i, o.Attempt)
		require.NotNil(t, o.Failure)
		assert.Equal(t, KindInfrastructure, o.Failure.Kind)
		assert.ErrorIs(t, o.Failure, context.Canceled)
	}
}

func TestRunAttempts_CancelStopsLaunchesButNotInFlight(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Sniper{
		Probe: scripted(map[int]step{
			0: func(ctx context.Context) ([]reservation.Slot, error) {
				cancel()
				time.Sleep(10 * time.Millisecond)
				if ctx.Err() != nil {
					return nil, errors.New("in-flight probe was canceled")
				}
				return []reservation.Slot{testSlot(19)}, nil
			},
		}),
		Policy: RetryPolicy{MaxAttempts: 3, Interval: 50 * time.Millisecond},
	}

	outcomes := s.RunAttempts(ctx, testParams())
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Succeeded(), "in-flight attempt should run to completion")
	for _, o := range outcomes[1:] {
		require.NotNil(t, o.Failure)
		assert.Equal(t, KindInfrastructure, o.Failure.Kind)
		assert.Contains(t, o.Failure.Error(), "not launched")
	}
}

func TestRunAttempts_ParamsAreCopiedPerAttempt(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []int
	s := &Sniper{
		Probe: func(_ context.Context, p reservation.TargetParameters) ([]reservation.Slot, error) {
			mu.Lock()
			seen = append(seen, p.PartySize)
			mu.Unlock()
			p.PartySize = 99
			return nil, errEmpty
		},
		Policy: RetryPolicy{MaxAttempts: 5},
	}

	params := testParams()
	s.RunAttempts(context.Background(), params)

	assert.Equal(t, []int{2, 2, 2, 2, 2}, seen)
	assert.Equal(t, 2, params.PartySize)
}

type recordingObserver struct {
	mu       sync.Mutex
	launched []int
	finished map[int]bool
}

func (r *recordingObserver) AttemptLaunched(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launched = append(r.launched, i)
}

func (r *recordingObserver) AttemptFinished(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[int]bool{}
	}
	r.finished[o.Attempt] = o.Succeeded()
}

func TestRunAttempts_Observer(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	s := &Sniper{
		Probe:    scripted(map[int]step{2: found(testSlot(21))}),
		Policy:   RetryPolicy{MaxAttempts: 3},
		Observer: obs,
	}
	s.RunAttempts(context.Background(), testParams())

	assert.Equal(t, []int{0, 1, 2}, obs.launched)
	assert.Equal(t, map[int]bool{0: false, 1: false, 2: true}, obs.finished)
}
