package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/model"
)

type findOptions struct {
	from      string
	to        string
	duration  int
	limit     int
	icsPath   string
	noRefresh bool
}

func newFindCmd(flags *rootFlags) *cobra.Command {
	opts := &findOptions{}

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print every window where the whole group is free",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFind(cmd.Context(), flags, opts, cmd.OutOrStdout(), time.Now())
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "Range start YYYY-MM-DD (overrides config)")
	cmd.Flags().StringVar(&opts.to, "to", "", "Range end YYYY-MM-DD, inclusive (overrides config)")
	cmd.Flags().IntVarP(&opts.duration, "duration", "d", 0, "Trip length in days (overrides config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Print at most N windows (0 = all)")
	cmd.Flags().StringVar(&opts.icsPath, "ics", "", "Also write the windows as an iCalendar file")
	cmd.Flags().BoolVar(&opts.noRefresh, "no-refresh", false, "Skip calendar downloads; use configured days and rules only")
	return cmd
}

func runFind(ctx context.Context, flags *rootFlags, opts *findOptions, out io.Writer, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := loadApp(flags, now)
	if err != nil {
		return err
	}

	rng := a.planner.Snapshot().Trip.Range
	if opts.from != "" {
		if rng.From, err = model.ParseDay(opts.from); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if opts.to != "" {
		if rng.To, err = model.ParseDay(opts.to); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}
	if err := a.planner.SetRange(rng); err != nil {
		return err
	}
	if opts.duration > 0 {
		a.planner.SetDuration(opts.duration)
	}

	if !opts.noRefresh {
		rep, err := a.syncer.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		appLog.Debug("refresh done", "sources", rep.Sources, "failed", rep.Failed, "busy_days", rep.BusyDays)
	}

	res := a.planner.Evaluate()
	loc := a.cfg.Location()

	fmt.Fprintf(out, "%s: %d-day trip, %s - %s, %d people\n",
		res.Trip.Name, res.Trip.DurationDays,
		formatDay(res.Trip.Range.From, loc), formatDay(res.Trip.Range.To, loc), len(res.People))

	if len(res.Windows) == 0 {
		fmt.Fprintln(out, "No available windows.")
	} else {
		fmt.Fprintf(out, "%d available windows:\n", len(res.Windows))
		for i, w := range res.Windows {
			if opts.limit > 0 && i >= opts.limit {
				fmt.Fprintf(out, "  ... %d more\n", len(res.Windows)-i)
				break
			}
			fmt.Fprintf(out, "  %s - %s\n", formatDay(w.Start, loc), formatDay(w.End, loc))
		}
	}

	if opts.icsPath != "" {
		body := ics.ExportWindows(res.Trip, res.Windows, now)
		if err := os.WriteFile(opts.icsPath, body, 0o644); err != nil {
			return fmt.Errorf("write ics: %w", err)
		}
		appLog.Info("windows exported", "path", opts.icsPath, "count", len(res.Windows))
	}
	return nil
}

func formatDay(d model.Day, loc *time.Location) string {
	return d.Time(loc).Format("Jan 2, 2006")
}
