package schemas

import (
	"time"
)

// -- Common Schemas --

// CrawlTask is a unit of work owned by the Frontier.
type CrawlTask struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// -- Result Schemas --

// PageResult collects everything observed during one page visit.
type PageResult struct {
	RunID      string             `json:"run_id"`
	VisitID    string             `json:"visit_id"`
	URL        string             `json:"url"`
	Depth      int                `json:"depth"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Elements   int                `json:"elements"`
	Outcomes   []ClickOutcome     `json:"outcomes"`
	Forms      []SubmissionResult `json:"forms,omitempty"`
	Popups     []PopupReport      `json:"popups,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// RunSummary aggregates counters over a whole exploration run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	StartURL        string    `json:"start_url"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	PagesVisited    int       `json:"pages_visited"`
	ElementsProbed  int       `json:"elements_probed"`
	Activated       int       `json:"activated"`
	RouteChanges    int       `json:"route_changes"`
	URLChanges      int       `json:"url_changes"`
	PopupsDetected  int       `json:"popups_detected"`
	FormsSubmitted  int       `json:"forms_submitted"`
	FormsSucceeded  int       `json:"forms_succeeded"`
	DegradedPopups  int       `json:"degraded_popups"`
	Interrupted     bool      `json:"interrupted"`
}

// Add folds a page result into the summary.
func (s *RunSummary) Add(p PageResult) {
	s.PagesVisited++
	s.ElementsProbed += len(p.Outcomes)
	for _, o := range p.Outcomes {
		if o.Activated {
			s.Activated++
		}
		if o.RouteChanged {
			s.RouteChanges++
		}
		if o.URLChanged {
			s.URLChanges++
		}
		if o.PopupDetected {
			s.PopupsDetected++
		}
	}
	for _, f := range p.Forms {
		s.FormsSubmitted++
		if f.Success {
			s.FormsSucceeded++
		}
	}
	for _, pr := range p.Popups {
		if pr.Degraded {
			s.DegradedPopups++
		}
	}
}
