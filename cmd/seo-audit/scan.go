package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/report"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// scanOptions are the flags of the scan command
type scanOptions struct {
	URL        string
	MaxPages   int
	Format     string
	Output     string
	NoProgress bool
}

func newScanCmd(flags *globalFlags, stdout, stderr io.Writer, exitCode *int) *cobra.Command {
	opts := scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan <url>",
		Short: "Scan one site and print or save its report",
		Example: `  seo-audit scan example.com
  seo-audit scan https://example.com/blog --max-pages 50 --format markdown --output reports/`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.URL = args[0]
			*exitCode = doScan(cmd.Context(), flags, opts, stdout, stderr)
		},
	}
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 0, "Page budget (default scan.default_max_pages)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "json", "Report format: "+strings.Join(formatNames(), ", "))
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Write the report to this file, or into this directory when it ends with '/' or exists")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func formatNames() []string {
	names := make([]string, len(report.Formats))
	for i, f := range report.Formats {
		names[i] = string(f)
	}
	return names
}

// doScan runs one scan and renders its report. Returns the exit code.
func doScan(ctx context.Context, flags *globalFlags, opts scanOptions, stdout, stderr io.Writer) int {
	format, err := report.ParseFormat(opts.Format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	a, err := loadApp(flags, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	if opts.MaxPages != 0 && !a.cfg.Scan.MaxPagesInRange(opts.MaxPages) {
		fmt.Fprintf(stderr, "Error: max-pages must be an integer between 1 and %d\n", a.cfg.Scan.MaxPagesLimit)
		return 1
	}

	g, err := a.newGuard()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	target, err := g.Validate(ctx, opts.URL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	store, err := a.openStore()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if store != nil {
		defer store.Close()
	}

	var bar *progressbar.ProgressBar
	if !opts.NoProgress {
		bar = newProgressBar(stderr)
	}
	emit := func(ev models.Event) {
		if bar != nil && ev.Type == models.EventProgress {
			bar.Describe(ev.Label)
			_ = bar.Set(ev.Progress)
		}
	}

	scanID := uuid.NewString()
	scanner := a.newScanner(nil)
	rep, err := scanner.Run(ctx, orchestrate.Request{URL: target, MaxPages: opts.MaxPages, ScanID: scanID}, emit)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Scan failed: %v\n", err)
		return 1
	}

	if store != nil {
		if err := store.SaveReport(scanID, rep); err != nil {
			a.log.Errorf("Failed to save report to history: %v", err)
		}
	}

	if opts.Output == "" {
		if err := report.Render(stdout, rep, format); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	path := outputPath(opts.Output, rep, format)
	if err := writeReport(path, rep, format); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stderr, "Score %d (%s). Report saved to %s\n", rep.Health.Score, rep.Health.MainIssue, path)
	return 0
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting scan"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// outputPath resolves --output: directories get a generated file name
func outputPath(output string, rep *models.ScanReport, format report.Format) string {
	isDir := strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(os.PathSeparator))
	if info, err := os.Stat(output); err == nil && info.IsDir() {
		isDir = true
	}
	if !isDir {
		return output
	}
	finished, err := time.Parse(time.RFC3339, rep.Meta.FinishedAt)
	if err != nil {
		finished = time.Now()
	}
	return filepath.Join(output, utils.ReportFilename(rep.Meta.Host, format.Extension(), finished))
}

func writeReport(path string, rep *models.ScanReport, format report.Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := report.Render(f, rep, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
