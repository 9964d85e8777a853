package score

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sriram-PR/seo-audit/pkg/models"
)

// NoMajorIssue is the headline when every category is clean
const NoMajorIssue = "No major issue detected"

// Per-item penalties
const (
	PenaltyBrokenLink      = 10
	PenaltyMissingMeta     = 5
	PenaltyDuplicateTitles = 3
	PenaltyThinPage        = 2
	PenaltyMissingH1       = 2
)

// Counts are the raw finding counts a score is derived from
type Counts struct {
	MissingMeta     int
	BrokenLinks     int // All broken records, including transport errors
	DuplicateGroups int
	ThinPages       int
	MissingH1       int
}

// Max returns the largest of the five raw counts
func (c Counts) Max() int {
	m := c.MissingMeta
	for _, v := range []int{c.BrokenLinks, c.DuplicateGroups, c.ThinPages, c.MissingH1} {
		if v > m {
			m = v
		}
	}
	return m
}

type candidate struct {
	label  string
	weight int
}

// Score derives the health score and main issue from the counts.
// The main issue is the category with the largest weighted total; ties go to the earlier
// category in the order broken links, missing meta, duplicate titles, thin pages, missing H1.
// Its item count is the largest raw count across all categories, not the winner's own count.
func Score(c Counts) models.Health {
	score := 100 -
		PenaltyMissingMeta*c.MissingMeta -
		PenaltyBrokenLink*c.BrokenLinks -
		PenaltyDuplicateTitles*c.DuplicateGroups -
		PenaltyThinPage*c.ThinPages -
		PenaltyMissingH1*c.MissingH1
	score = max(0, min(100, score))

	candidates := []candidate{
		{"Broken internal links", PenaltyBrokenLink * c.BrokenLinks},
		{"Missing meta descriptions", PenaltyMissingMeta * c.MissingMeta},
		{"Duplicate titles", PenaltyDuplicateTitles * c.DuplicateGroups},
		{"Thin content pages", PenaltyThinPage * c.ThinPages},
		{"Missing H1", PenaltyMissingH1 * c.MissingH1},
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].weight > candidates[j].weight })

	if candidates[0].weight <= 0 {
		return models.Health{Score: score, MainIssue: NoMajorIssue}
	}
	return models.Health{
		Score:     score,
		MainIssue: fmt.Sprintf("%s on %d item(s)", candidates[0].label, c.Max()),
	}
}

// DuplicateTitles groups pages by trimmed, non-empty title and keeps groups of two or more.
// URLs stay in crawl order. The result is never nil.
func DuplicateTitles(pages []models.PageAnalysis) map[string][]string {
	byTitle := make(map[string][]string)
	for _, p := range pages {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		byTitle[title] = append(byTitle[title], p.URL)
	}
	dups := make(map[string][]string)
	for title, urls := range byTitle {
		if len(urls) > 1 {
			dups[title] = urls
		}
	}
	return dups
}

// Aggregate builds the issue lists, KPIs and health of a scan.
// broken holds crawl failures followed by link-check findings.
func Aggregate(pages []models.PageAnalysis, broken []models.BrokenLink, thinThreshold int) (models.IssueSet, models.KPIs, models.Health) {
	issues := models.IssueSet{
		MissingMetaDescriptions: []models.PageRef{},
		BrokenLinks:             broken,
		DuplicateTitles:         DuplicateTitles(pages),
		ThinPages:               []models.ThinPage{},
		MissingH1:               []models.PageRef{},
	}
	if issues.BrokenLinks == nil {
		issues.BrokenLinks = []models.BrokenLink{}
	}

	for _, p := range pages {
		if p.MetaDescription == "" {
			issues.MissingMetaDescriptions = append(issues.MissingMetaDescriptions, models.PageRef{URL: p.URL})
		}
		if p.H1Count == 0 {
			issues.MissingH1 = append(issues.MissingH1, models.PageRef{URL: p.URL})
		}
		if p.WordCount < thinThreshold {
			issues.ThinPages = append(issues.ThinPages, models.ThinPage{URL: p.URL, Words: p.WordCount})
		}
	}

	critical := len(issues.MissingMetaDescriptions)
	for _, b := range issues.BrokenLinks {
		if b.IsCritical() {
			critical++
		}
	}

	kpis := models.KPIs{
		PagesCrawled:            len(pages),
		CriticalIssues:          critical,
		MissingMetaDescriptions: len(issues.MissingMetaDescriptions),
		ThinPages:               len(issues.ThinPages),
	}

	health := Score(Counts{
		MissingMeta:     len(issues.MissingMetaDescriptions),
		BrokenLinks:     len(issues.BrokenLinks),
		DuplicateGroups: len(issues.DuplicateTitles),
		ThinPages:       len(issues.ThinPages),
		MissingH1:       len(issues.MissingH1),
	})
	return issues, kpis, health
}
