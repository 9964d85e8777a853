package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/watch"
)

type watchOptions struct {
	Targets     []string
	Interval    string
	MaxPages    int
	Concurrency int
}

func newWatchCmd(flags *globalFlags, stderr io.Writer, exitCode *int) *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch [url...]",
		Short: "Re-scan sites on a schedule and log score changes",
		Example: `  seo-audit watch example.com example.org --interval 24h
  seo-audit watch --config config.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			opts.Targets = args
			*exitCode = doWatch(cmd.Context(), flags, opts, stderr)
		},
	}
	cmd.Flags().StringVarP(&opts.Interval, "interval", "i", "", "Re-scan interval, e.g. 30m, 24h, 7d (default watch.interval)")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "Page budget per scan (default watch.max_pages)")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 2, "Targets scanned at once")
	return cmd
}

// doWatch runs the scheduler until the context is cancelled
func doWatch(ctx context.Context, flags *globalFlags, opts watchOptions, stderr io.Writer) int {
	a, err := loadApp(flags, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	interval, raw, err := resolveWatch(a.cfg.Watch.Interval, opts.Interval)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid watch interval '%s': %v\n", raw, err)
		return 1
	}

	targets := opts.Targets
	if len(targets) == 0 {
		targets = a.cfg.Watch.Targets
	}
	if len(targets) == 0 {
		fmt.Fprintln(stderr, "Error: no watch targets (pass URLs or set watch.targets)")
		return 1
	}
	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = a.cfg.Watch.MaxPages
	}

	g, err := a.newGuard()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	normalized := make([]string, 0, len(targets))
	for _, t := range targets {
		target, err := g.Validate(ctx, t)
		if err != nil {
			fmt.Fprintf(stderr, "Error: watch target '%s': %v\n", t, err)
			return 1
		}
		normalized = append(normalized, target)
	}

	schedOpts := watch.Options{
		Targets:     normalized,
		Interval:    interval,
		MaxPages:    maxPages,
		Concurrency: opts.Concurrency,
		StateDir:    a.cfg.Storage.StateDir,
	}
	store, err := a.openStore()
	if err != nil {
		a.log.Error(err)
		return 1
	}
	if store != nil {
		defer store.Close()
		go store.RunGC(ctx, a.cfg.Storage.GCInterval)
		schedOpts.Store = store
	}

	scanner := a.newScanner(nil)
	go scanner.RunMaintenance(ctx)

	scheduler := watch.NewScheduler(schedOpts, scanner, a.log.WithField("component", "watch"))
	if err := scheduler.Run(ctx); err != nil {
		a.log.Errorf("Watch failed: %v", err)
		return 1
	}
	return 0
}

// resolveWatch picks the flag interval over the configured one, defaulting to 24h
func resolveWatch(configured, flag string) (time.Duration, string, error) {
	raw := configured
	if flag != "" {
		raw = flag
	}
	if raw == "" {
		raw = "24h"
	}
	d, err := watch.ParseInterval(raw)
	return d, raw, err
}
