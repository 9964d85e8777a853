package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/server"
)

func newServeCmd(flags *globalFlags, stderr io.Writer, exitCode *int) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/SSE audit service",
		Example: `  seo-audit serve --addr :8000
  SEO_AUDIT_STORAGE_ENABLED=true seo-audit serve --config config.yaml`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			*exitCode = doServe(cmd, flags, addr, stderr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; overrides server.addr")
	return cmd
}

// doServe runs the service until the command context is cancelled
func doServe(cmd *cobra.Command, flags *globalFlags, addr string, stderr io.Writer) int {
	ctx := cmd.Context()
	a, err := loadApp(flags, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()
	if addr != "" {
		a.cfg.Server.Addr = addr
	}

	var m *metrics.Metrics
	if !a.cfg.Server.DisableMetrics {
		m = metrics.NewMetrics()
	}
	g, err := a.newGuard()
	if err != nil {
		a.log.Errorf("Failed to create host guard: %v", err)
		return 1
	}
	scanner := a.newScanner(m)
	go scanner.RunMaintenance(ctx)

	opts := []server.Option{server.WithMetrics(m)}
	store, err := a.openStore()
	if err != nil {
		a.log.Error(err)
		return 1
	}
	if store != nil {
		defer store.Close()
		go store.RunGC(ctx, a.cfg.Storage.GCInterval)
		opts = append(opts, server.WithStore(store))
	}

	srv, err := server.New(a.cfg, scanner, g, a.log.WithField("service", "seo-audit"), opts...)
	if err != nil {
		a.log.Errorf("Failed to create server: %v", err)
		return 1
	}
	if err := srv.ListenAndServe(ctx); err != nil {
		a.log.Errorf("Server error: %v", err)
		return 1
	}
	return 0
}
