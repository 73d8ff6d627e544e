// Package jobs stores snipe job definitions and their run history.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusFound   Status = "found"
	StatusBooked  Status = "booked"
	StatusMissed  Status = "missed"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a job in this status will not run again.
func (s Status) Terminal() bool {
	switch s {
	case StatusFound, StatusBooked, StatusMissed, StatusFailed:
		return true
	}
	return false
}

type Job struct {
	ID              int64
	UserID          int64
	Name            string
	VenueID         int
	PartySize       int
	ReservationDate time.Time
	EarliestTime    time.Duration
	WakeAt          time.Time

	IntervalMS       int
	MaxAttempts      int
	AttemptTimeoutMS int
	Book             bool

	Status    Status
	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (j Job) Target() reservation.TargetParameters {
	y, m, d := j.ReservationDate.Date()
	return reservation.TargetParameters{
		VenueID:      j.VenueID,
		Date:         time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		EarliestTime: j.EarliestTime,
		PartySize:    j.PartySize,
	}
}

func (j Job) Policy() snipe.RetryPolicy {
	return snipe.RetryPolicy{
		Interval:       time.Duration(j.IntervalMS) * time.Millisecond,
		MaxAttempts:    j.MaxAttempts,
		AttemptTimeout: time.Duration(j.AttemptTimeoutMS) * time.Millisecond,
	}
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return errors.New("name required")
	}
	if j.WakeAt.IsZero() {
		return errors.New("wake_at required")
	}
	if j.MaxAttempts < 1 {
		return errors.New("max_attempts must be >= 1")
	}
	if err := j.Target().Validate(); err != nil {
		return err
	}
	return j.Policy().Validate()
}

// Run is the summary of one scheduler run of a job.
type Run struct {
	JobID          int64
	RunID          string
	Outcome        Status
	Attempts       int
	InfraFailures  int
	DomainFailures int
	SlotsFound     int
	Detail         string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunFromReport summarizes a missed run.
func RunFromReport(jobID int64, runID string, r *snipe.Report, started, finished time.Time) Run {
	return Run{
		JobID:          jobID,
		RunID:          runID,
		Outcome:        StatusMissed,
		Attempts:       r.Attempts,
		InfraFailures:  r.Infrastructure.Count,
		DomainFailures: r.Domain.Count,
		Detail:         r.Error(),
		StartedAt:      started,
		FinishedAt:     finished,
	}
}

const jobColumns = `id,user_id,name,venue_id,party_size,reservation_date,earliest_time,wake_at,interval_ms,max_attempts,attempt_timeout_ms,book,status,last_error,created_at,updated_at`

func scanJob(row db.Row) (Job, error) {
	var j Job
	var earliest, status string
	if err := row.Scan(
		&j.ID, &j.UserID, &j.Name, &j.VenueID, &j.PartySize, &j.ReservationDate, &earliest, &j.WakeAt,
		&j.IntervalMS, &j.MaxAttempts, &j.AttemptTimeoutMS, &j.Book, &status, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return Job{}, err
	}
	d, err := reservation.ParseClock(earliest)
	if err != nil {
		return Job{}, fmt.Errorf("job %d earliest_time: %w", j.ID, err)
	}
	j.EarliestTime = d
	j.Status = Status(status)
	return j, nil
}

func scanJobs(rows db.Rows) ([]Job, error) {
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, j Job) (int64, error) {
	if err := j.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO jobs(user_id,name,venue_id,party_size,reservation_date,earliest_time,wake_at,interval_ms,max_attempts,attempt_timeout_ms,book,status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'pending')
RETURNING id`,
		j.UserID, j.Name, j.VenueID, j.PartySize, j.Target().Date, reservation.FormatClock(j.EarliestTime), j.WakeAt,
		j.IntervalMS, j.MaxAttempts, j.AttemptTimeoutMS, j.Book,
	).Scan(&id)
	return id, db.Wrap(err)
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Job, error) {
	rows, err := r.db.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, db.Wrap(err)
	}
	return scanJobs(rows)
}

func (r *Repo) GetByIDForUser(ctx context.Context, id, userID int64) (Job, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1 AND user_id=$2`, id, userID))
	if err != nil {
		return Job{}, db.Wrap(err)
	}
	return j, nil
}

// ClaimDue moves up to limit pending jobs waking at or before until into
// running and returns them. Concurrent claimers never get the same job.
func (r *Repo) ClaimDue(ctx context.Context, until time.Time, limit int) ([]Job, error) {
	rows, err := r.db.Query(ctx, `
UPDATE jobs SET status='running', updated_at=now()
WHERE id IN (
  SELECT id FROM jobs
  WHERE status='pending' AND wake_at <= $1
  ORDER BY wake_at ASC
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
RETURNING `+jobColumns, until, limit)
	if err != nil {
		return nil, db.Wrap(err)
	}
	return scanJobs(rows)
}

// ReleaseRunning puts jobs left running by a previous process back to
// pending and returns how many there were.
func (r *Repo) ReleaseRunning(ctx context.Context) (int64, error) {
	n, err := r.db.Exec(ctx, `UPDATE jobs SET status='pending', updated_at=now() WHERE status='running'`)
	return n, db.Wrap(err)
}

// RecordRun stores run and moves its job to run.Outcome.
func (r *Repo) RecordRun(ctx context.Context, run Run) error {
	if !run.Outcome.Terminal() {
		return fmt.Errorf("record run: non-terminal outcome %q", run.Outcome)
	}
	var lastErr *string
	if run.Outcome == StatusMissed || run.Outcome == StatusFailed {
		lastErr = &run.Detail
	}
	_, err := r.db.Exec(ctx, `
WITH run AS (
  INSERT INTO job_runs(job_id,run_id,outcome,attempts,infra_failures,domain_failures,slots_found,detail,started_at,finished_at)
  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
)
UPDATE jobs SET status=$3, last_error=$11, updated_at=now() WHERE id=$1`,
		run.JobID, run.RunID, string(run.Outcome), run.Attempts, run.InfraFailures, run.DomainFailures, run.SlotsFound,
		run.Detail, run.StartedAt, run.FinishedAt, lastErr,
	)
	return db.Wrap(err)
}

// ListRuns returns a job's runs, newest first.
func (r *Repo) ListRuns(ctx context.Context, jobID int64) ([]Run, error) {
	rows, err := r.db.Query(ctx, `
SELECT job_id,run_id::text,outcome,attempts,infra_failures,domain_failures,slots_found,detail,started_at,finished_at
FROM job_runs WHERE job_id=$1 ORDER BY started_at DESC`, jobID)
	if err != nil {
		return nil, db.Wrap(err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var outcome string
		if err := rows.Scan(&run.JobID, &run.RunID, &outcome, &run.Attempts, &run.InfraFailures, &run.DomainFailures,
			&run.SlotsFound, &run.Detail, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Outcome = Status(outcome)
		out = append(out, run)
	}
	return out, rows.Err()
}
