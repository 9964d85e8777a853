package orchestrate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Sriram-PR/seo-audit/pkg/fetch"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/parse"
	"github.com/Sriram-PR/seo-audit/pkg/process"
)

// PageInspection is the single-page view returned by Inspect
type PageInspection struct {
	Analysis   models.PageAnalysis `json:"analysis"`
	StatusCode int                 `json:"status_code"`
	FinalURL   string              `json:"final_url"`
	Headings   []process.Heading   `json:"headings"`
	Markdown   string              `json:"markdown"`
}

// Inspect fetches and analyzes a single page without crawling: SEO signals,
// heading outline and a Markdown rendering of the main content.
func (s *Scanner) Inspect(ctx context.Context, rawURL string) (*PageInspection, error) {
	target, err := parse.NormalizeTarget(rawURL)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetcher.Fetch(ctx, http.MethodGet, target)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetching %s: %w", target, fetch.StatusError(resp.StatusCode))
	}
	if !resp.IsHTML() {
		return nil, fmt.Errorf("%s is not an HTML page (content type %q)", target, resp.ContentType)
	}

	markdown, err := process.ContentMarkdown(resp.Body)
	if err != nil {
		s.log.WithField("url", target).Warnf("Markdown conversion failed: %v", err)
	}
	headings := process.ExtractHeadings([]byte(markdown))
	if headings == nil {
		headings = []process.Heading{}
	}

	return &PageInspection{
		Analysis:   process.AnalyzePage(target, resp.Body),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.FinalURL,
		Headings:   headings,
		Markdown:   markdown,
	}, nil
}
