package snipe

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/reservation"
)

func TestFindSlots_Scenarios(t *testing.T) {
	t.Parallel()

	slot := reservation.Slot{MaxSize: 2, Start: time.Date(2026, 11, 1, 19, 30, 0, 0, time.UTC)}

	t.Run("later attempt succeeds after domain failures", func(t *testing.T) {
		t.Parallel()
		s := &Sniper{
			Probe:  scripted(map[int]step{0: failing(errEmpty), 1: failing(errEmpty), 2: found(slot)}),
			Policy: RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond},
		}
		got, err := s.FindSlots(context.Background(), testParams())
		require.NoError(t, err)
		assert.Equal(t, []reservation.Slot{slot}, got)
	})

	t.Run("every attempt finds nothing", func(t *testing.T) {
		t.Parallel()
		s := &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: 2}}
		got, err := s.FindSlots(context.Background(), testParams())
		assert.Nil(t, got)

		var report *Report
		require.ErrorAs(t, err, &report)
		assert.Equal(t, FailureSummary{Count: 2, Example: "empty"}, report.Domain)
		assert.Equal(t, FailureSummary{}, report.Infrastructure)
		assert.False(t, report.Infrastructure.HasExample())
	})

	t.Run("crash does not block a success", func(t *testing.T) {
		t.Parallel()
		s := &Sniper{
			Probe: scripted(map[int]step{
				0: func(context.Context) ([]reservation.Slot, error) { panic("task aborted") },
				1: found(slot),
			}),
			Policy: RetryPolicy{MaxAttempts: 2},
		}
		got, err := s.FindSlots(context.Background(), testParams())
		require.NoError(t, err)
		assert.Equal(t, []reservation.Slot{slot}, got)
	})

	t.Run("zero attempts", func(t *testing.T) {
		t.Parallel()
		s := &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: 0}}
		outcomes := s.RunAttempts(context.Background(), testParams())
		assert.Empty(t, outcomes)

		_, ok := Resolve(outcomes)
		assert.False(t, ok)

		report := BuildReport(outcomes)
		assert.Equal(t, &Report{}, report)

		_, err := s.FindSlots(context.Background(), testParams())
		var r *Report
		require.ErrorAs(t, err, &r)
		assert.Zero(t, r.Attempts)
	})
}

func TestFindSlots_EarliestLaunchedSuccessWins(t *testing.T) {
	t.Parallel()

	first := testSlot(19)
	second := testSlot(21)
	s := &Sniper{
		Probe: scripted(map[int]step{
			0: func(context.Context) ([]reservation.Slot, error) {
				time.Sleep(40 * time.Millisecond)
				return []reservation.Slot{first}, nil
			},
			1: found(second),
		}),
		Policy: RetryPolicy{MaxAttempts: 2},
	}

	got, err := s.FindSlots(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, []reservation.Slot{first}, got)
}

func TestFindSlots_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sniper *Sniper
		params reservation.TargetParameters
	}{
		{"nil probe", &Sniper{Policy: RetryPolicy{MaxAttempts: 1}}, testParams()},
		{"negative attempts", &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: -1}}, testParams()},
		{"negative interval", &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: 1, Interval: -time.Second}}, testParams()},
		{"invalid params", &Sniper{Probe: scripted(nil), Policy: RetryPolicy{MaxAttempts: 1}}, reservation.TargetParameters{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tc.sniper.FindSlots(context.Background(), tc.params)
			require.Error(t, err)
			var r *Report
			assert.False(t, errors.As(err, &r), "validation errors are not reports")
		})
	}
}

func TestFindSlots_LogsRunContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	s := &Sniper{Probe: scripted(map[int]step{0: found(testSlot(19))}), Policy: RetryPolicy{MaxAttempts: 1}}

	_, err := s.FindSlots(ctx, testParams())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"run_id"`)
	assert.Contains(t, out, `"venue_id":1505`)
	assert.Contains(t, out, "attempt found slots")
}

func TestFindSlots_UsesGivenRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := WithRunID(zerolog.New(&buf).WithContext(context.Background()), "job-7-run")
	s := &Sniper{Probe: scripted(map[int]step{0: found(testSlot(19))}), Policy: RetryPolicy{MaxAttempts: 1}}

	_, err := s.FindSlots(ctx, testParams())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"run_id":"job-7-run"`)

	_, ok := RunIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestRetryPolicy_Span(t *testing.T) {
	t.Parallel()

	assert.Zero(t, RetryPolicy{MaxAttempts: 1, Interval: time.Second}.Span())
	assert.Equal(t, 3*time.Second, RetryPolicy{MaxAttempts: 4, Interval: time.Second}.Span())
}
