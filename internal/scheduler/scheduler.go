// Package scheduler runs stored snipe jobs at their wake time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/resy-sniper/internal/clock"
	"github.com/example/resy-sniper/internal/jobs"
	"github.com/example/resy-sniper/internal/metrics"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

const (
	defaultLead  = 30 * time.Second
	claimBatch   = 25
	recordBudget = 10 * time.Second
)

type JobStore interface {
	ClaimDue(ctx context.Context, until time.Time, limit int) ([]jobs.Job, error)
	RecordRun(ctx context.Context, run jobs.Run) error
}

// Resy is the part of *resy.Client the scheduler uses.
type Resy interface {
	FindSlots(ctx context.Context, p reservation.TargetParameters) ([]reservation.Slot, error)
	DefaultPaymentMethod(ctx context.Context) (int64, error)
	Reserve(ctx context.Context, p reservation.TargetParameters, slots []reservation.Slot, paymentMethodID int64) (reservation.Slot, string, error)
}

// Scheduler claims jobs shortly before they wake and runs each one in its
// own goroutine.
type Scheduler struct {
	Store    JobStore
	Resy     Resy
	Interval time.Duration
	// Lead is how far ahead of WakeAt a job is claimed. Defaults to 30s.
	Lead    time.Duration
	Clock   clock.Clock        // defaults to clock.Real
	Metrics *metrics.Collector // optional

	wg sync.WaitGroup
}

// Run polls until ctx is done, then waits for in-flight jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real{}
	}
	return s.Clock
}

func (s *Scheduler) tick(ctx context.Context) {
	lead := s.Lead
	if lead <= 0 {
		lead = defaultLead
	}
	js, err := s.Store.ClaimDue(ctx, s.clock().Now().Add(lead), claimBatch)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("claim due jobs failed")
		return
	}
	for _, j := range js {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJob(ctx, j)
		}()
	}
}

func (s *Scheduler) runJob(ctx context.Context, j jobs.Job) {
	runID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Int64("job_id", j.ID).Str("job", j.Name).Logger()
	ctx = snipe.WithRunID(logger.WithContext(ctx), runID)

	// fetch the card before waking; it costs nothing once slots are open
	var paymentMethod int64
	if j.Book {
		pm, err := s.Resy.DefaultPaymentMethod(ctx)
		if err != nil {
			s.record(ctx, failedRun(j.ID, runID, err, s.clock().Now()))
			return
		}
		paymentMethod = pm
	}

	if err := clock.SleepUntil(ctx, s.clock(), j.WakeAt); err != nil {
		// left running; ReleaseRunning picks it up on the next start
		logger.Warn().Err(err).Msg("job interrupted before wake time")
		return
	}

	started := s.clock().Now()
	sniper := snipe.Sniper{Probe: s.Resy.FindSlots, Policy: j.Policy()}
	if s.Metrics != nil {
		sniper.Observer = s.Metrics
	}
	slots, err := sniper.FindSlots(ctx, j.Target())
	run := s.summarize(ctx, j, runID, slots, err, paymentMethod, started)
	s.record(ctx, run)
}

func (s *Scheduler) summarize(ctx context.Context, j jobs.Job, runID string, slots []reservation.Slot, err error, paymentMethod int64, started time.Time) jobs.Run {
	log := zerolog.Ctx(ctx)
	var report *snipe.Report
	switch {
	case errors.As(err, &report):
		return jobs.RunFromReport(j.ID, runID, report, started, s.clock().Now())
	case err != nil:
		return failedRun(j.ID, runID, err, started)
	}

	run := jobs.Run{
		JobID:      j.ID,
		RunID:      runID,
		Outcome:    jobs.StatusFound,
		Attempts:   j.MaxAttempts,
		SlotsFound: len(slots),
		Detail:     slots[0].String(),
		StartedAt:  started,
	}
	if j.Book {
		booked, conf, err := s.Resy.Reserve(ctx, j.Target(), slots, paymentMethod)
		if err != nil {
			log.Warn().Err(err).Msg("slots found but booking failed")
			run.Detail = "booking failed: " + err.Error()
		} else {
			run.Outcome = jobs.StatusBooked
			run.Detail = booked.String() + " confirmation " + conf
		}
	}
	run.FinishedAt = s.clock().Now()
	return run
}

func failedRun(jobID int64, runID string, err error, at time.Time) jobs.Run {
	return jobs.Run{
		JobID:      jobID,
		RunID:      runID,
		Outcome:    jobs.StatusFailed,
		Detail:     err.Error(),
		StartedAt:  at,
		FinishedAt: at,
	}
}

// record stores run even when ctx was canceled mid-run.
func (s *Scheduler) record(ctx context.Context, run jobs.Run) {
	log := zerolog.Ctx(ctx)
	if s.Metrics != nil {
		s.Metrics.ObserveRun(runOutcome(run.Outcome), run.FinishedAt.Sub(run.StartedAt))
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordBudget)
	defer cancel()
	if err := s.Store.RecordRun(rctx, run); err != nil {
		log.Error().Err(err).Str("outcome", string(run.Outcome)).Msg("record run failed")
		return
	}
	log.Info().Str("outcome", string(run.Outcome)).Str("detail", run.Detail).Msg("job finished")
}

func runOutcome(s jobs.Status) string {
	switch s {
	case jobs.StatusFound:
		return metrics.OutcomeFound
	case jobs.StatusBooked:
		return metrics.OutcomeBooked
	case jobs.StatusMissed:
		return metrics.OutcomeMissed
	default:
		return metrics.OutcomeError
	}
}
