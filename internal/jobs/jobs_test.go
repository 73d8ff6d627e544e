package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/snipe"
)

func validJob() Job {
	return Job{
		Name:            "Carbone anniversary",
		VenueID:         6194,
		PartySize:       2,
		ReservationDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.FixedZone("EST", -5*3600)),
		EarliestTime:    19*time.Hour + 30*time.Minute,
		WakeAt:          time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC),
		IntervalMS:      250,
		MaxAttempts:     8,
	}
}

func TestJob_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Job)
		ok     bool
	}{
		{name: "valid", mutate: func(*Job) {}, ok: true},
		{name: "no name", mutate: func(j *Job) { j.Name = "  " }},
		{name: "no wake", mutate: func(j *Job) { j.WakeAt = time.Time{} }},
		{name: "no attempts", mutate: func(j *Job) { j.MaxAttempts = 0 }},
		{name: "no venue", mutate: func(j *Job) { j.VenueID = 0 }},
		{name: "no party", mutate: func(j *Job) { j.PartySize = 0 }},
		{name: "negative interval", mutate: func(j *Job) { j.IntervalMS = -1 }},
		{name: "negative timeout", mutate: func(j *Job) { j.AttemptTimeoutMS = -5 }},
		{name: "zero interval is fine", mutate: func(j *Job) { j.IntervalMS = 0 }, ok: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			j := validJob()
			tc.mutate(&j)
			if tc.ok {
				assert.NoError(t, j.Validate())
			} else {
				assert.Error(t, j.Validate())
			}
		})
	}
}

func TestJob_TargetAndPolicy(t *testing.T) {
	t.Parallel()

	j := validJob()
	j.AttemptTimeoutMS = 1500

	p := j.Target()
	assert.Equal(t, "2026-11-01", p.Day())
	assert.Equal(t, time.UTC, p.Date.Location())
	assert.Equal(t, time.Date(2026, 11, 1, 19, 30, 0, 0, time.UTC), p.EarliestStart())
	assert.Equal(t, 6194, p.VenueID)

	pol := j.Policy()
	assert.Equal(t, 250*time.Millisecond, pol.Interval)
	assert.Equal(t, 8, pol.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, pol.AttemptTimeout)
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusFound, StatusBooked, StatusMissed, StatusFailed} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusPending, StatusRunning, Status("bogus")} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestRunFromReport(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 10, 18, 14, 0, 0, 0, time.UTC)
	r := &snipe.Report{
		Attempts:       4,
		Infrastructure: snipe.FailureSummary{Count: 1, Example: "attempt 2 timed out after 1s"},
		Domain:         snipe.FailureSummary{Count: 3, Example: "empty slots when finding slots"},
	}
	run := RunFromReport(7, "run-1", r, start, start.Add(2*time.Second))

	assert.Equal(t, StatusMissed, run.Outcome)
	assert.Equal(t, 4, run.Attempts)
	assert.Equal(t, 1, run.InfraFailures)
	assert.Equal(t, 3, run.DomainFailures)
	assert.Equal(t, r.Error(), run.Detail)
}

type fakeRow struct {
	vals []any
	err  error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = f.vals[i].(int64)
		case *int:
			*p = f.vals[i].(int)
		case *string:
			*p = f.vals[i].(string)
		case *bool:
			*p = f.vals[i].(bool)
		case *time.Time:
			*p = f.vals[i].(time.Time)
		case **string:
			*p = f.vals[i].(*string)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func TestScanJob(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	row := fakeRow{vals: []any{
		int64(3), int64(9), "dinner", 6194, 2, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), "19:30:00", now,
		250, 8, 0, true, "pending", (*string)(nil), now, now,
	}}

	j, err := scanJob(row)
	require.NoError(t, err)
	assert.Equal(t, int64(3), j.ID)
	assert.Equal(t, 19*time.Hour+30*time.Minute, j.EarliestTime)
	assert.Equal(t, StatusPending, j.Status)
	assert.True(t, j.Book)
	assert.Nil(t, j.LastError)

	row.vals[6] = "dinner time"
	_, err = scanJob(row)
	assert.Error(t, err)

	_, err = scanJob(fakeRow{err: errors.New("boom")})
	assert.EqualError(t, err, "boom")
}
