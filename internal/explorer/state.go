// internal/explorer/state.go
package explorer

import "go.uber.org/zap"

// ClickState is the lifecycle of a single element probe.
type ClickState int

const (
	StateIdle ClickState = iota
	StateActivating
	StateObserving
	StateResolved
)

var clickStateNames = [...]string{"idle", "activating", "observing", "resolved"}

func (s ClickState) String() string {
	if s < 0 || int(s) >= len(clickStateNames) {
		return "unknown"
	}
	return clickStateNames[s]
}

// probeMachine tracks one probe and logs each transition.
type probeMachine struct {
	state ClickState
	log   *zap.Logger
}

func (m *probeMachine) to(next ClickState) {
	m.log.Debug("Probe state transition.", zap.Stringer("from", m.state), zap.Stringer("to", next))
	m.state = next
}
