package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/clock"
	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/resy"
	"github.com/example/resy-sniper/internal/snipe"
)

func newSnipeCmd() *cobra.Command {
	var (
		configPath string
		now        bool
		book       bool
	)

	c := &cobra.Command{
		Use:   "snipe",
		Short: "Wait for the wake time, then race probes for open slots",
		Long: `Reads a snipe config, sleeps until its wait_till time, then launches
max_num_attempts probes millisecs_between apart and prints the slots found
by the earliest one that succeeded. With --book (or "book": true) the first
compatible slot is reserved with the account's default card.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadSnipe(ctx, configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("book") {
				cfg.Book = book
			}
			if now {
				cfg.WakeAt = clock.Real{}.Now()
			}
			client := resy.New(cfg.Credentials, resy.WithBaseURL(cfg.APIURL))
			return runSnipe(ctx, cmd.OutOrStdout(), client, cfg)
		},
	}

	c.Flags().StringVarP(&configPath, "config", "c", "config.json", "snipe config file (JSON or YAML)")
	c.Flags().BoolVar(&now, "now", false, "ignore wait_till and start immediately")
	c.Flags().BoolVar(&book, "book", false, "book the first compatible slot")
	return c
}

func runSnipe(ctx context.Context, out io.Writer, client *resy.Client, cfg config.Snipe) error {
	log := zerolog.Ctx(ctx)

	var paymentMethod int64
	if cfg.Book {
		pm, err := client.DefaultPaymentMethod(ctx)
		if err != nil {
			return fmt.Errorf("booking enabled but: %w", err)
		}
		paymentMethod = pm
	}

	if !cfg.WakeAt.IsZero() {
		if err := clock.SleepUntil(ctx, clock.Real{}, cfg.WakeAt); err != nil {
			return err
		}
	}

	sniper := &snipe.Sniper{Probe: client.FindSlots, Policy: cfg.Policy}
	slots, err := sniper.FindSlots(ctx, cfg.Target)
	var report *snipe.Report
	if errors.As(err, &report) {
		fmt.Fprintln(out, "no slots found")
		if perr := report.Print(out); perr != nil {
			return perr
		}
		return report
	}
	if err != nil {
		return err
	}

	printSlots(out, cfg.Target, slots)
	if !cfg.Book {
		return nil
	}

	booked, conf, err := client.Reserve(ctx, cfg.Target, slots, paymentMethod)
	if err != nil {
		return err
	}
	log.Info().Stringer("slot", booked).Msg("reservation confirmed")
	fmt.Fprintf(out, "booked %s (%s) confirmation=%s\n", booked.Start.Format(reservation.DateTimeLayout), booked.Type, conf)
	return nil
}

func printSlots(out io.Writer, p reservation.TargetParameters, slots []reservation.Slot) {
	fmt.Fprintf(out, "found %d slots\n", len(slots))
	for _, s := range slots {
		mark := " "
		if s.Satisfies(p) {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s  max %d  %s\n", mark, s.Start.Format(reservation.DateTimeLayout), s.MaxSize, s.Type)
	}
}
