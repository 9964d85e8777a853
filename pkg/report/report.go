package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// Format selects a report rendering
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists the supported formats
var Formats = []Format{FormatJSON, FormatYAML, FormatMarkdown, FormatHTML}

// ParseFormat accepts a format name (case-insensitive, "md" and "yml" allowed)
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: unknown report format '%s'", utils.ErrInvalidInput, name)
}

// Extension returns the file extension for the format, without the dot
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	case FormatHTML:
		return "html"
	}
	return "json"
}

// Render writes report to w in the given format
func Render(w io.Writer, report *models.ScanReport, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode report YAML: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(report))
		return err
	case FormatHTML:
		return renderHTML(w, report)
	}
	return fmt.Errorf("%w: unknown report format '%s'", utils.ErrInvalidInput, format)
}

// Markdown renders a human-readable summary with one table per issue category
func Markdown(r *models.ScanReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SEO audit: %s\n\n", r.Meta.Host)
	fmt.Fprintf(&b, "**Health score:** %d/100  \n", r.Health.Score)
	fmt.Fprintf(&b, "**Main issue:** %s\n\n", r.Health.MainIssue)

	b.WriteString("| Pages crawled | Critical issues | Missing meta descriptions | Thin pages |\n")
	b.WriteString("|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n\n",
		r.KPIs.PagesCrawled, r.KPIs.CriticalIssues, r.KPIs.MissingMetaDescriptions, r.KPIs.ThinPages)

	b.WriteString("## Broken links\n\n")
	if len(r.Issues.BrokenLinks) == 0 {
		b.WriteString("None.\n\n")
	} else {
		b.WriteString("| From | To | Status |\n|---|---|---|\n")
		for _, l := range r.Issues.BrokenLinks {
			from := l.Source()
			if from == "" {
				from = "(crawl)"
			}
			status := l.Status.String()
			if l.Error != "" {
				status += ": " + l.Error
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(from), cell(l.To), cell(status))
		}
		b.WriteString("\n")
	}

	writePageList(&b, "Missing meta descriptions", r.Issues.MissingMetaDescriptions)
	writePageList(&b, "Missing H1", r.Issues.MissingH1)

	b.WriteString("## Thin content pages\n\n")
	if len(r.Issues.ThinPages) == 0 {
		b.WriteString("None.\n\n")
	} else {
		b.WriteString("| URL | Words |\n|---|---:|\n")
		for _, p := range r.Issues.ThinPages {
			fmt.Fprintf(&b, "| %s | %d |\n", cell(p.URL), p.Words)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Duplicate titles\n\n")
	if len(r.Issues.DuplicateTitles) == 0 {
		b.WriteString("None.\n\n")
	} else {
		titles := make([]string, 0, len(r.Issues.DuplicateTitles))
		for t := range r.Issues.DuplicateTitles {
			titles = append(titles, t)
		}
		sort.Strings(titles)
		b.WriteString("| Title | Pages |\n|---|---|\n")
		for _, t := range titles {
			fmt.Fprintf(&b, "| %s | %s |\n", cell(t), cell(strings.Join(r.Issues.DuplicateTitles[t], ", ")))
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "Target %s, max %d pages, thin threshold %d words. Finished %s in %.2fs.\n",
		r.Meta.TargetURL, r.Meta.MaxPages, r.Meta.ThinWordsThreshold, r.Meta.FinishedAt, r.Meta.DurationS)
	return b.String()
}

func writePageList(b *strings.Builder, heading string, pages []models.PageRef) {
	fmt.Fprintf(b, "## %s\n\n", heading)
	if len(pages) == 0 {
		b.WriteString("None.\n\n")
		return
	}
	for _, p := range pages {
		fmt.Fprintf(b, "- %s\n", p.URL)
	}
	b.WriteString("\n")
}

// cell escapes a value for a GFM table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderHTML(w io.Writer, r *models.ScanReport) error {
	var body bytes.Buffer
	if err := markdownRenderer.Convert([]byte(Markdown(r)), &body); err != nil {
		return fmt.Errorf("render report HTML: %w", err)
	}
	_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>SEO audit: %s</title>
<style>body{font-family:sans-serif;max-width:960px;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(r.Meta.Host), body.String())
	return err
}
