// internal/results/csv.go
package results

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

var clickHeader = []string{
	"run_id", "visit_id", "page_url", "depth", "selector", "used_selector", "element_type",
	"activated", "effect", "score", "route_changed", "url_changed", "popup_detected",
	"new_url", "virtual_route", "cross_host", "request_count", "dom_insertions",
	"duration_ms", "error",
}

var popupHeader = []string{
	"page_url", "selector", "kind", "text_excerpt", "forms_present", "final_state",
	"tier", "degraded", "forms_submitted", "forms_succeeded", "error",
}

func writeClicksCSV(w io.Writer, records []ClickRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(clickHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.RunID, r.VisitID, r.PageURL, strconv.Itoa(r.Depth),
			r.Selector, r.UsedSelector, string(r.ElementType),
			strconv.FormatBool(r.Activated), string(r.Effect),
			strconv.FormatFloat(r.Score, 'f', -1, 64),
			strconv.FormatBool(r.RouteChanged), strconv.FormatBool(r.URLChanged),
			strconv.FormatBool(r.PopupDetected),
			r.NewURL, r.VirtualRoute, strconv.FormatBool(r.CrossHost),
			strconv.Itoa(r.RequestCount), strconv.Itoa(r.DOMInsertions),
			strconv.FormatInt(r.Duration.Milliseconds(), 10), r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writePopupsCSV(w io.Writer, reports []schemas.PopupReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(popupHeader); err != nil {
		return err
	}
	for _, r := range reports {
		succeeded := 0
		for _, f := range r.Forms {
			if f.Success {
				succeeded++
			}
		}
		row := []string{
			r.PageURL, r.Descriptor.Selector, string(r.Descriptor.Kind),
			oneLine(r.Descriptor.TextExcerpt), strconv.FormatBool(r.Descriptor.FormsPresent),
			r.FinalState, strconv.Itoa(r.Tier), strconv.FormatBool(r.Degraded),
			strconv.Itoa(len(r.Forms)), strconv.Itoa(succeeded), r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
