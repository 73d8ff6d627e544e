package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/jobs"
	"github.com/example/resy-sniper/internal/reservation"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage snipe jobs (non-UI)",
	}
	cmd.AddCommand(newJobCreateCmd())
	cmd.AddCommand(newJobListCmd())
	return cmd
}

type jobFlags struct {
	userID           int64
	name             string
	venueID          int
	partySize        int
	resDate          string
	earliest         string
	wakeAt           string
	timezone         string
	intervalMS       int
	maxAttempts      int
	attemptTimeoutMS int
	book             bool
}

func (f jobFlags) job() (jobs.Job, error) {
	day, err := reservation.ParseDay(f.resDate)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("--reservation-date: %w", err)
	}
	earliest, err := reservation.ParseClock(f.earliest)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("--earliest-time: %w", err)
	}
	loc, err := time.LoadLocation(f.timezone)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("--timezone: %w", err)
	}
	wake, err := time.ParseInLocation(reservation.DateTimeLayout, f.wakeAt, loc)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("--wake-at (want %q): %w", reservation.DateTimeLayout, err)
	}

	j := jobs.Job{
		UserID:           f.userID,
		Name:             f.name,
		VenueID:          f.venueID,
		PartySize:        f.partySize,
		ReservationDate:  day,
		EarliestTime:     earliest,
		WakeAt:           wake.UTC(),
		IntervalMS:       f.intervalMS,
		MaxAttempts:      f.maxAttempts,
		AttemptTimeoutMS: f.attemptTimeoutMS,
		Book:             f.book,
	}
	return j, j.Validate()
}

func newJobCreateCmd() *cobra.Command {
	var f jobFlags

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a job that snipes a venue when reservations open",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := f.job()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			d, _, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			id, err := jobs.NewRepo(d).Create(ctx, j)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created job id=%d wake_at_utc=%s\n", id, j.WakeAt.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().Int64Var(&f.userID, "user-id", 0, "user id (from DB)")
	c.Flags().StringVar(&f.name, "name", "", "job name")
	c.Flags().IntVar(&f.venueID, "venue-id", 0, "resy venue id")
	c.Flags().IntVar(&f.partySize, "party-size", 2, "party size")
	c.Flags().StringVar(&f.resDate, "reservation-date", "", "reservation date YYYY-MM-DD")
	c.Flags().StringVar(&f.earliest, "earliest-time", "00:00", "earliest acceptable slot HH:MM[:SS]")
	c.Flags().StringVar(&f.wakeAt, "wake-at", "", `when reservations open, "YYYY-MM-DD HH:MM:SS"`)
	c.Flags().StringVar(&f.timezone, "timezone", "Local", "timezone of --wake-at")
	c.Flags().IntVar(&f.intervalMS, "interval-ms", 250, "milliseconds between attempt launches")
	c.Flags().IntVar(&f.maxAttempts, "max-attempts", 8, "number of attempts")
	c.Flags().IntVar(&f.attemptTimeoutMS, "attempt-timeout-ms", 0, "per-attempt timeout, 0 waits for every attempt")
	c.Flags().BoolVar(&f.book, "book", false, "book the first compatible slot")

	_ = c.MarkFlagRequired("user-id")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("venue-id")
	_ = c.MarkFlagRequired("reservation-date")
	_ = c.MarkFlagRequired("wake-at")
	return c
}

func newJobListCmd() *cobra.Command {
	var userID int64
	c := &cobra.Command{
		Use:   "list",
		Short: "List jobs for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, _, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			js, err := jobs.NewRepo(d).ListByUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, j := range js {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%d name=%q status=%s venue=%d day=%s earliest=%s wake=%s\n",
					j.ID, j.Name, j.Status, j.VenueID, j.Target().Day(), reservation.FormatClock(j.EarliestTime), j.WakeAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	c.Flags().Int64Var(&userID, "user-id", 0, "user id")
	_ = c.MarkFlagRequired("user-id")
	return c
}
