// Package snipe races concurrent availability probes launched at a fixed
// cadence and reports why they missed when none of them succeeds.
package snipe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/resy-sniper/internal/reservation"
)

type runIDKey struct{}

// WithRunID fixes the id FindSlots logs under. Without it each call
// generates a fresh one.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// FindSlots runs every attempt and returns the slots found by the
// earliest-launched successful one. When none succeeds the error is a
// *Report.
func (s *Sniper) FindSlots(ctx context.Context, params reservation.TargetParameters) ([]reservation.Slot, error) {
	if s.Probe == nil {
		return nil, errors.New("snipe: probe is nil")
	}
	if err := s.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("snipe: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("snipe: %w", err)
	}

	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}
	logger := zerolog.Ctx(ctx).With().
		Str("run_id", runID).
		Int("venue_id", params.VenueID).
		Str("day", params.Day()).
		Int("party_size", params.PartySize).
		Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().
		Int("max_attempts", s.Policy.MaxAttempts).
		Dur("interval", s.Policy.Interval).
		Msg("starting attempts")

	start := time.Now()
	outcomes := s.RunAttempts(ctx, params)

	if slots, ok := Resolve(outcomes); ok {
		logger.Info().Int("slots", len(slots)).Dur("took", time.Since(start)).Msg("found slots")
		return slots, nil
	}

	report := BuildReport(outcomes)
	logger.Warn().
		Int("infrastructure_failures", report.Infrastructure.Count).
		Int("domain_failures", report.Domain.Count).
		Dur("took", time.Since(start)).
		Msg("no attempt found slots")
	return nil, report
}
