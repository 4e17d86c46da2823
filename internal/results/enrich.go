// internal/results/enrich.go
package results

import (
	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// EffectOf names the most significant consequence of a click. A full
// navigation outranks a virtual route change, which outranks a popup.
func EffectOf(o schemas.ClickOutcome) Effect {
	switch {
	case !o.Activated:
		return EffectFailed
	case o.URLChanged:
		return EffectNavigation
	case o.RouteChanged:
		return EffectRoute
	case o.PopupDetected:
		return EffectPopup
	case o.DOMInsertions > 0:
		return EffectDOMUpdate
	case o.RequestCount > 0:
		return EffectRequest
	default:
		return EffectNone
	}
}

// Score weighs every signal of an outcome, not only the dominant one.
func Score(o schemas.ClickOutcome, cfg ScoreConfig) float64 {
	if !o.Activated {
		return 0
	}
	var s float64
	if o.URLChanged {
		s += cfg.URLChange
		if o.CrossHost {
			s += cfg.CrossHost
		}
	}
	if o.RouteChanged {
		s += cfg.RouteChange
	}
	if o.PopupDetected {
		s += cfg.Popup
	}
	ins := o.DOMInsertions
	if cfg.InsertionCap > 0 && ins > cfg.InsertionCap {
		ins = cfg.InsertionCap
	}
	s += float64(ins) * cfg.PerInsertion
	s += float64(o.RequestCount) * cfg.PerRequest
	if s < 0 {
		return 0
	}
	return s
}

// Enrich flattens a page result into click records.
func Enrich(page schemas.PageResult, cfg ScoreConfig) []ClickRecord {
	out := make([]ClickRecord, 0, len(page.Outcomes))
	for _, o := range page.Outcomes {
		out = append(out, ClickRecord{
			RunID:        page.RunID,
			VisitID:      page.VisitID,
			PageURL:      page.URL,
			Depth:        page.Depth,
			Effect:       EffectOf(o),
			Score:        Score(o, cfg),
			ClickOutcome: o,
		})
	}
	return out
}
