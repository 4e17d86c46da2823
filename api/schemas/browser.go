package schemas

import (
	"time"
)

// -- Element Schemas --

// ElementType is the coarse role assigned to a discovered node.
type ElementType string

const (
	ElementButton    ElementType = "button"
	ElementLink      ElementType = "link"
	ElementForm      ElementType = "form"
	ElementContainer ElementType = "container"
	ElementOther     ElementType = "other"
)

// Priority orders element types for probing. Lower probes first.
func (t ElementType) Priority() int {
	switch t {
	case ElementButton:
		return 1
	case ElementLink:
		return 2
	default:
		return 3
	}
}

// ElementDescriptor describes one interactive candidate on a page.
// Selector resolved to exactly one node when it was synthesized. It must be
// re-resolved before every use since the DOM may have changed since.
type ElementDescriptor struct {
	Selector    string      `json:"selector"`
	Tag         string      `json:"tag"`
	Text        string      `json:"text"`
	Visible     bool        `json:"visible"`
	Interactive bool        `json:"interactive"`
	Type        ElementType `json:"type"`
}

// -- Click Schemas --

// ClickOutcome records what happened after activating an element.
// RouteChanged, URLChanged and PopupDetected are independent of each other.
type ClickOutcome struct {
	Selector      string           `json:"selector"`
	UsedSelector  string           `json:"used_selector,omitempty"`
	ElementType   ElementType      `json:"element_type"`
	Activated     bool             `json:"activated"`
	RouteChanged  bool             `json:"route_changed"`
	URLChanged    bool             `json:"url_changed"`
	PopupDetected bool             `json:"popup_detected"`
	Popup         *PopupDescriptor `json:"popup,omitempty"`
	OriginURL     string           `json:"origin_url"`
	NewURL        string           `json:"new_url,omitempty"`
	VirtualRoute  string           `json:"virtual_route,omitempty"`
	CrossHost     bool             `json:"cross_host"`
	RequestCount  int              `json:"request_count"`
	DOMInsertions int              `json:"dom_insertions"`
	Duration      time.Duration    `json:"duration"`
	Error         string           `json:"error,omitempty"`
}

// -- Popup Schemas --

// PopupKind is inferred from the overlay's class names.
type PopupKind string

const (
	PopupInfo    PopupKind = "info"
	PopupSuccess PopupKind = "success"
	PopupWarning PopupKind = "warning"
	PopupError   PopupKind = "error"
	PopupConfirm PopupKind = "confirm"
)

// PopupDescriptor exists only for a matched node with a non-zero bounding box
// that is neither hidden nor fully transparent.
type PopupDescriptor struct {
	Selector     string    `json:"selector"`
	Kind         PopupKind `json:"kind"`
	TextExcerpt  string    `json:"text_excerpt"`
	FormsPresent bool      `json:"forms_present"`
}

// PopupReport is the recorded result of one recovery cycle.
type PopupReport struct {
	RunID      string          `json:"run_id,omitempty"`
	VisitID    string          `json:"visit_id,omitempty"`
	PageURL    string          `json:"page_url"`
	Descriptor PopupDescriptor `json:"descriptor"`
	FinalState string          `json:"final_state"`
	// Tier is the highest escalation tier reached (0 means a simple dismiss sufficed).
	Tier     int    `json:"tier"`
	Degraded bool   `json:"degraded"`
	// Forms holds the submissions made inside the popup, if it carried a form.
	Forms []SubmissionResult `json:"forms,omitempty"`
	Error string             `json:"error,omitempty"`
}
