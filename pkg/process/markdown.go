package process

import (
	"bytes"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

// contentSelectors are tried in order to find the main content of a page
var contentSelectors = []string{"main", "article", "[role=main]", "body"}

// ContentMarkdown converts the main content of a page to Markdown for inspection.
// Scripts, styles and page chrome (nav, footer) are dropped before conversion.
func ContentMarkdown(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("%w: HTML: %v", utils.ErrParsing, err)
	}
	doc.Find(invisibleSelector).Remove()

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if sel := doc.Find(selector); sel.Length() > 0 {
			mainContent = sel.First().Clone()
			break
		}
	}
	if mainContent == nil {
		return "", nil
	}
	cleanupHTML(mainContent)

	contentHTML, err := goquery.OuterHtml(mainContent)
	if err != nil {
		return "", fmt.Errorf("failed getting content HTML: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(contentHTML)
	if err != nil {
		return "", fmt.Errorf("%w: markdown conversion: %v", utils.ErrParsing, err)
	}
	return strings.TrimSpace(markdown), nil
}

// cleanupHTML removes navigation chrome and permalink noise before conversion
func cleanupHTML(content *goquery.Selection) {
	content.Find("nav, footer, header[role=banner], aside").Remove()
	content.Find("a.headerlink, a.permalink").Remove()

	// Remove anchors that only contain ¶ or are empty with fragment-only hrefs
	content.Find("a").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if text == "¶" || text == "#" || (text == "" && strings.HasPrefix(href, "#")) {
			s.Remove()
		}
	})
}
