package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
)

const (
	serverName    = "seo-audit"
	serverVersion = "1.0.0"
)

// Scanner runs scans and single-page inspections. *orchestrate.Scanner satisfies it.
type Scanner interface {
	Run(ctx context.Context, req orchestrate.Request, emit orchestrate.EmitFunc) (*models.ScanReport, error)
	Inspect(ctx context.Context, rawURL string) (*orchestrate.PageInspection, error)
}

// TargetValidator normalizes and vets scan targets. *guard.Guard satisfies it.
type TargetValidator interface {
	Validate(ctx context.Context, raw string) (string, error)
}

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig *config.AppConfig
	Scanner   Scanner
	Guard     TargetValidator
	Store     storage.ReportStore // Optional; enables history lookups
	Transport string              // "stdio" or "sse"
	Port      int
	Logger    *logrus.Logger
}

// Server exposes the audit engine as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Scanner == nil || cfg.Guard == nil {
		return nil, fmt.Errorf("Scanner and Guard are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	maxPagesLimit := s.cfg.AppConfig.Scan.MaxPagesLimit

	runScanTool := mcp.NewTool("run_scan",
		mcp.WithDescription("Start a background SEO audit of a website. Returns immediately with a job ID."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Site to audit, e.g. 'example.com' or 'https://example.com/blog'"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description(fmt.Sprintf("Page budget for the crawl (1-%d, default %d)", maxPagesLimit, s.cfg.AppConfig.Scan.DefaultMaxPages)),
		),
	)
	s.mcpServer.AddTool(runScanTool, s.handleRunScan)

	statusTool := mcp.NewTool("get_scan_status",
		mcp.WithDescription("Get the status and progress of a scan job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by run_scan"),
		),
	)
	s.mcpServer.AddTool(statusTool, s.handleGetScanStatus)

	reportTool := mcp.NewTool("get_scan_report",
		mcp.WithDescription("Get the full report of a completed scan"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by run_scan"),
		),
	)
	s.mcpServer.AddTool(reportTool, s.handleGetScanReport)

	listTool := mcp.NewTool("list_scans",
		mcp.WithDescription("List recent scans, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of scans to return (default: 10, max: 100)"),
		),
	)
	s.mcpServer.AddTool(listTool, s.handleListScans)

	cancelTool := mcp.NewTool("cancel_scan",
		mcp.WithDescription("Cancel a running scan job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by run_scan"),
		),
	)
	s.mcpServer.AddTool(cancelTool, s.handleCancelScan)

	inspectTool := mcp.NewTool("inspect_page",
		mcp.WithDescription("Fetch a single page and return its SEO signals, heading outline and content as markdown"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The page URL to inspect"),
		),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspectPage)

	s.log.Infof("Registered %d MCP tools", 6)
}

// Run serves the MCP protocol on the configured transport until ctx is done
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case "stdio", "":
		s.log.Info("Starting MCP server with stdio transport")
		return s.serveStdio(ctx, os.Stdin, os.Stdout)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		return s.serveSSE(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

func (s *Server) serveStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Server) serveSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer)
	errCh := make(chan error, 1)
	go func() {
		errCh <- sseServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sseServer.Shutdown(shutdownCtx)
}

// Shutdown cancels every running scan job
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
