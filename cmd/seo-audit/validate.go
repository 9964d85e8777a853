package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/watch"
)

func newValidateCmd(flags *globalFlags, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without running anything",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			*exitCode = doValidate(flags.configPath, stdout, stderr)
		},
	}
}

func newConfigCmd(flags *globalFlags, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			*exitCode = doConfig(flags.configPath, stdout, stderr)
		},
	}
}

// doValidate checks the configuration and returns an exit code
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}

	if cfg.Watch.Interval != "" {
		if _, err := watch.ParseInterval(cfg.Watch.Interval); err != nil {
			fmt.Fprintf(stderr, "ERROR: watch.interval '%s': %v\n", cfg.Watch.Interval, err)
			return 1
		}
	}

	source := "built-in defaults"
	if configPath != "" {
		source = configPath
	}
	fmt.Fprintf(stdout, "OK: configuration from %s is valid\n", source)
	fmt.Fprintf(stdout, "  Default page budget: %d (limit %d)\n", cfg.Scan.DefaultMaxPages, cfg.Scan.MaxPagesLimit)
	fmt.Fprintf(stdout, "  Rate limit: %d scans per %s\n", cfg.Server.RateLimitMax, cfg.Server.RateLimitWindow)
	if cfg.Storage.Enabled {
		fmt.Fprintf(stdout, "  Report history: %s (keep %d)\n", cfg.Storage.StateDir, cfg.Storage.HistoryLimit)
	} else {
		fmt.Fprintln(stdout, "  Report history: disabled")
	}
	if len(cfg.Watch.Targets) > 0 {
		fmt.Fprintf(stdout, "  Watch targets: %d\n", len(cfg.Watch.Targets))
	}
	return 0
}

// doConfig prints the effective configuration
func doConfig(configPath string, stdout, stderr io.Writer) int {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if err := config.Dump(cfg, stdout); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	return 0
}
