// internal/explorer/errors.go
package explorer

import (
	"errors"

	"github.com/xkilldash9x/scalpel-explore/internal/popup"
)

// Error taxonomy. Each is caught at the smallest scope it affects (field,
// element, form, then page) so that one failure never aborts the rest of
// the page, and no page failure aborts the crawl.
var (
	// ErrResolution marks a selector that no longer resolves to a node.
	ErrResolution = errors.New("selector did not resolve")
	// ErrInteraction marks a node that resolved but could not be acted on.
	ErrInteraction = errors.New("element not interactable")
	// ErrActivation is recorded when the whole selector fallback chain failed.
	ErrActivation = errors.New("activation fallback chain exhausted")
	// ErrOracle marks an oracle failure that could not be degraded.
	ErrOracle = errors.New("oracle unavailable")
	// ErrNavigationTimeout is a navigation wait that ran out. It is read as
	// "no navigation happened" rather than as a failure.
	ErrNavigationTimeout = errors.New("navigation wait timed out")
	// ErrPopupPersistent marks an overlay that survived every recovery tier.
	ErrPopupPersistent = popup.ErrPopupPersistent
)
