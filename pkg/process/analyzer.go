package process

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/parse"
)

// wordPattern matches Unicode word runs; a hyphen or apostrophe may join two runs ("café-bar's" is one word)
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:['’-][\p{L}\p{N}_]+)*`)

// urlPattern matches URL-shaped tokens in running text ("https://…", "www.…"); they are not words
var urlPattern = regexp.MustCompile(`(?i)\b(?:[a-z][a-z0-9+.-]*://|www\.)\S+`)

// invisibleSelector lists subtrees whose text never counts towards the visible word count
const invisibleSelector = "script, style, noscript, template"

// AnalyzePage extracts the SEO signals of one HTML document.
// Parsing is permissive and never fails: unusable markup degrades to empty fields.
func AnalyzePage(pageURL string, html []byte) models.PageAnalysis {
	analysis := models.PageAnalysis{URL: pageURL, InternalLinks: []string{}}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return analysis
	}

	analysis.Title = strings.TrimSpace(doc.Find("title").First().Text())
	analysis.MetaDescription = metaDescription(doc)
	analysis.H1Count = doc.Find("h1").Length()

	// Invisible subtrees are dropped before both text and link extraction
	doc.Find(invisibleSelector).Remove()
	analysis.WordCount = CountWords(VisibleText(doc.Find("body")))
	analysis.InternalLinks = ExtractInternalLinks(doc, pageURL)

	return analysis
}

// metaDescription returns the trimmed content of the first <meta name="description">, matched case-insensitively
func metaDescription(doc *goquery.Document) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		c, _ := s.Attr("content")
		content = strings.TrimSpace(c)
		return false
	})
	return content
}

// VisibleText concatenates the text nodes under sel, separated by single spaces with whitespace collapsed
func VisibleText(sel *goquery.Selection) string {
	var b strings.Builder
	collectText(sel, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
			b.WriteByte(' ')
			return
		}
		collectText(c, b)
	})
}

// CountWords counts word tokens in already-extracted text. URL-shaped tokens are dropped first.
func CountWords(text string) int {
	text = urlPattern.ReplaceAllString(text, " ")
	return len(wordPattern.FindAllStringIndex(text, -1))
}

// ExtractInternalLinks returns the same-host links of a page, fragment-stripped and
// deduplicated in first-seen order.
func ExtractInternalLinks(doc *goquery.Document, pageURL string) []string {
	links := []string{}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return links
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := parse.ResolveLink(base, href)
		if !ok || !parse.SameHost(abs, pageURL) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
