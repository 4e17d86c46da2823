// internal/results/types.go
package results

import (
	"time"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// Output file names, relative to the results directory.
const (
	ClickFile  = "click-results"
	PopupFile  = "popup-results"
	ReportFile = "scan-report.json"
)

// Format selects the encoding of the click and popup files.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Effect is the single most significant thing a click caused.
type Effect string

const (
	EffectNavigation Effect = "navigation"
	EffectRoute      Effect = "route"
	EffectPopup      Effect = "popup"
	EffectDOMUpdate  Effect = "dom_update"
	EffectRequest    Effect = "request"
	EffectNone       Effect = "none"
	EffectFailed     Effect = "failed"
)

// ClickRecord is one row of the click results: the outcome plus the page it
// was observed on.
type ClickRecord struct {
	RunID   string  `json:"run_id"`
	VisitID string  `json:"visit_id"`
	PageURL string  `json:"page_url"`
	Depth   int     `json:"depth"`
	Effect  Effect  `json:"effect"`
	Score   float64 `json:"score"`
	schemas.ClickOutcome
}

// PageEntry summarizes one visit for the scan report.
type PageEntry struct {
	VisitID    string                     `json:"visit_id"`
	URL        string                     `json:"url"`
	Depth      int                        `json:"depth"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Elements   int                        `json:"elements"`
	Probed     int                        `json:"probed"`
	Forms      []schemas.SubmissionResult `json:"forms,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Report is the content of scan-report.json.
type Report struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Summary     schemas.RunSummary `json:"summary"`
	Effects     map[Effect]int     `json:"effects"`
	Top         []ClickRecord      `json:"top_interactions"`
	Pages       []PageEntry        `json:"pages"`
}

// ScoreConfig weighs the signals of an outcome when ranking interactions.
type ScoreConfig struct {
	URLChange    float64
	CrossHost    float64
	RouteChange  float64
	Popup        float64
	PerInsertion float64
	PerRequest   float64
	// InsertionCap bounds how much DOM churn alone can contribute.
	InsertionCap int
}

// DefaultScoreConfig ranks navigation over in-app routing over popups.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		URLChange:    10,
		CrossHost:    -4,
		RouteChange:  8,
		Popup:        5,
		PerInsertion: 0.25,
		PerRequest:   0.5,
		InsertionCap: 20,
	}
}
