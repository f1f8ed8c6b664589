package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	appLog "tripcal/internal/log"
	"tripcal/internal/web"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled calendar refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func runServe(ctx context.Context, flags *rootFlags, listen string) error {
	appLog.Info("tripcal starting", "version", version)

	a, err := loadApp(flags, time.Now())
	if err != nil {
		return err
	}
	if listen != "" {
		a.cfg.Listen = listen
	}

	st := a.planner.Snapshot()
	appLog.Info("effective config",
		"listen", a.cfg.Listen,
		"timezone", a.cfg.Timezone,
		"refresh", a.cfg.RefreshCron,
		"trip", st.Trip.Name,
		"from", st.Trip.Range.From.String(),
		"to", st.Trip.Range.To.String(),
		"duration_days", st.Trip.DurationDays,
		"people", len(st.People),
	)

	if err := a.syncer.Start(ctx, a.cfg.RefreshCron); err != nil {
		return err
	}
	defer a.syncer.Stop()

	err = web.NewServer(a.cfg, a.planner, a.syncer).Serve(ctx)
	appLog.Info("tripcal exiting")
	return err
}
