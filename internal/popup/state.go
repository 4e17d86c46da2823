// internal/popup/state.go
package popup

// State is a step of the popup recovery state machine.
type State int

const (
	StateDetect State = iota
	StateNoPopup
	StatePopupFound
	StateAnalyzeNestedForm
	StateFormSubflow
	StateSimpleDismiss
	StateCleanup
	StateStabilityCheck
	StateOperational
	StateDegraded
)

var stateNames = [...]string{
	"detect", "no_popup", "popup_found", "analyze_nested_form", "form_subflow",
	"simple_dismiss", "cleanup", "stability_check", "operational", "degraded",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool {
	return s == StateNoPopup || s == StateOperational || s == StateDegraded
}
