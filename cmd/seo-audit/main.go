package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/guard"
	applog "github.com/Sriram-PR/seo-audit/pkg/log"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
)

const version = "1.0.0"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code
func execute(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signalContext(stderr)
	defer stop()

	exitCode := 0
	root := newRootCmd(stdout, stderr, &exitCode)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return exitCode
}

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "seo-audit",
		Short: "SEO audit crawler: scan a site, score its health and report the issues",
		Long: `seo-audit crawls a website within a page budget, checks its internal links,
and produces a 0-100 health score with the issues behind it.

It runs as a one-shot CLI scan, an HTTP/SSE service, an MCP tool server,
or a scheduler that re-scans watched sites.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (env SEO_AUDIT_* overrides apply)")
	root.PersistentFlags().StringVar(&flags.logLevel, "loglevel", "", "Log level (debug, info, warn, error); overrides logging.level")

	root.AddCommand(
		newServeCmd(flags, stderr, exitCode),
		newScanCmd(flags, stdout, stderr, exitCode),
		newMcpCmd(flags, stdout, stderr, exitCode),
		newWatchCmd(flags, stderr, exitCode),
		newValidateCmd(flags, stdout, stderr, exitCode),
		newConfigCmd(flags, stdout, stderr, exitCode),
		&cobra.Command{
			Use:   "version",
			Short: "Show version info",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(stdout, "seo-audit %s\n", version)
			},
		},
	)
	return root
}

// signalContext is cancelled on SIGINT/SIGTERM. A second signal, or a stalled
// shutdown, forces the process to exit.
func signalContext(stderr io.Writer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(stderr, "Received signal: %v. Initiating graceful shutdown...\n", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			fmt.Fprintf(stderr, "Received second signal: %v. Forcing exit.\n", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintln(stderr, "Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// app bundles what every long-running command needs
type app struct {
	cfg    *config.AppConfig
	log    *logrus.Logger
	closer io.Closer
}

// loadApp loads configuration and builds the root logger. Config warnings are logged.
func loadApp(flags *globalFlags, logOut io.Writer) (*app, error) {
	cfg, warnings, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	log, closer := applog.Setup(cfg.Logging, logOut)
	for _, w := range warnings {
		log.Warn(w)
	}
	if flags.configPath != "" {
		log.Debugf("Loaded configuration from %s", flags.configPath)
	}
	return &app{cfg: cfg, log: log, closer: closer}, nil
}

func (a *app) Close() {
	_ = a.closer.Close()
}

func (a *app) newGuard() (*guard.Guard, error) {
	return guard.New(guard.Options{AllowPrivate: a.cfg.Server.AllowPrivateTargets}, a.log.WithField("component", "guard"))
}

func (a *app) newScanner(m *metrics.Metrics) *orchestrate.Scanner {
	return orchestrate.NewScanner(a.cfg, logrus.NewEntry(a.log), orchestrate.WithMetrics(m))
}

// openStore opens the report history, or returns nil when it is disabled
func (a *app) openStore() (storage.ReportStore, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.NewBadgerStore(a.cfg.Storage, a.log.WithField("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open report history: %w", err)
	}
	return store, nil
}

// exitStatus maps a command outcome to an exit code; cancellation is a clean stop
func exitStatus(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}
