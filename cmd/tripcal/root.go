package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tripcal/internal/config"
	"tripcal/internal/ics"
	appLog "tripcal/internal/log"
	"tripcal/internal/planner"
	"tripcal/internal/refresh"
)

const version = "0.1.0"

// rootFlags holds persistent CLI flag values.
type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "tripcal",
		Short:         "Find trip dates that work for everyone",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "/etc/tripcal/config.yaml", "Path to config file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newServeCmd(flags), newFindCmd(flags))
	return root
}

// app bundles the pieces every command wires from the config.
type app struct {
	cfg     *config.Config
	planner *planner.Planner
	syncer  *refresh.Syncer
}

func loadApp(flags *rootFlags, now time.Time) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := appLog.ParseLevel(cfg.LogLevel)
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	trip := cfg.TripModel(now)
	if err := trip.Range.CheckLength(); err != nil {
		return nil, fmt.Errorf("trip range: %w", err)
	}

	p := planner.New(trip, cfg.Roster(), planner.WithLocation(cfg.Location()))
	syncer := refresh.NewSyncer(p, ics.NewFetcher(cfg.CacheDir), cfg.Location())

	return &app{cfg: cfg, planner: p, syncer: syncer}, nil
}
