package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/mcp"
)

func newMcpCmd(flags *globalFlags, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	var transport string
	var port int
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the MCP tool server",
		Long: `Start an MCP server exposing the audit engine as tools:
  run_scan, get_scan_status, get_scan_report, list_scans, cancel_scan, inspect_page`,
		Example: `  seo-audit mcp-server
  seo-audit mcp-server --transport sse --port 9090`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			*exitCode = doMcpServer(cmd.Context(), flags, transport, port, stderr)
		},
	}
	cmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport type: stdio or sse (default mcp.transport)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port for SSE transport (default mcp.port)")
	return cmd
}

// doMcpServer runs the MCP server. Logs always go to stderr so the stdio transport stays clean.
func doMcpServer(ctx context.Context, flags *globalFlags, transport string, port int, stderr io.Writer) int {
	a, err := loadApp(flags, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if transport == "" {
		transport = a.cfg.MCP.Transport
	}
	if port == 0 {
		port = a.cfg.MCP.Port
	}

	g, err := a.newGuard()
	if err != nil {
		a.log.Errorf("Failed to create host guard: %v", err)
		return 1
	}
	scanner := a.newScanner(nil)
	go scanner.RunMaintenance(ctx)

	srvCfg := &mcp.ServerConfig{
		AppConfig: a.cfg,
		Scanner:   scanner,
		Guard:     g,
		Transport: transport,
		Port:      port,
		Logger:    a.log,
	}
	store, err := a.openStore()
	if err != nil {
		a.log.Error(err)
		return 1
	}
	if store != nil {
		defer store.Close()
		srvCfg.Store = store
	}

	srv, err := mcp.NewServer(srvCfg)
	if err != nil {
		a.log.Errorf("Failed to create MCP server: %v", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Run(ctx); err != nil {
		a.log.Errorf("MCP server error: %v", err)
		return exitStatus(err)
	}
	return 0
}
