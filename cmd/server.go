package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/resy-sniper/internal/auth"
	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/jobs"
	"github.com/example/resy-sniper/internal/metrics"
	"github.com/example/resy-sniper/internal/migrate"
	"github.com/example/resy-sniper/internal/resy"
	"github.com/example/resy-sniper/internal/scheduler"
	"github.com/example/resy-sniper/internal/web"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the web UI and the job scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := zerolog.Ctx(ctx)

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if err := cfg.RequireResy(); err != nil {
				return err
			}

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			jobRepo := jobs.NewRepo(d)
			if n, err := jobRepo.ReleaseRunning(ctx); err != nil {
				return err
			} else if n > 0 {
				log.Warn().Int64("jobs", n).Msg("requeued jobs interrupted by the last shutdown")
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New()
			if err := m.Register(reg); err != nil {
				return err
			}

			sched := &scheduler.Scheduler{
				Store:    jobRepo,
				Resy:     resy.New(cfg.Resy),
				Interval: cfg.PollInterval,
				Metrics:  m,
			}
			ws := &web.Server{
				Auth:    auth.NewStore(d, cfg.CookieHashKey, cfg.CookieBlockKey),
				Jobs:    jobRepo,
				Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
				BaseURL: cfg.BaseURL,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				_ = sched.Run(gctx)
				return nil
			})
			g.Go(func() error {
				return web.Start(gctx, cfg.ListenAddr, ws.Routes(*log))
			})
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
