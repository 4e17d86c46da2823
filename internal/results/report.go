// internal/results/report.go
package results

import (
	"time"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// topInteractions bounds the ranked list in the scan report.
const topInteractions = 20

// GenerateReport compiles the scan report from the run summary and what the
// sink has buffered.
func GenerateReport(summary schemas.RunSummary, pages []schemas.PageResult, clicks []ClickRecord) *Report {
	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Summary:     summary,
		Effects:     make(map[Effect]int),
		Top:         Prioritize(clicks, topInteractions),
		Pages:       make([]PageEntry, 0, len(pages)),
	}
	for _, c := range clicks {
		r.Effects[c.Effect]++
	}
	for _, p := range pages {
		r.Pages = append(r.Pages, PageEntry{
			VisitID:    p.VisitID,
			URL:        p.URL,
			Depth:      p.Depth,
			StartedAt:  p.StartedAt,
			FinishedAt: p.FinishedAt,
			Elements:   p.Elements,
			Probed:     len(p.Outcomes),
			Forms:      p.Forms,
			Error:      p.Error,
		})
	}
	return r
}
