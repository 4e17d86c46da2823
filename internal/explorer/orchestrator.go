// internal/explorer/orchestrator.go
package explorer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/popup"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

// Orchestrator activates one element at a time and reports what changed.
// It never navigates; returning to the origin is the caller's policy.
type Orchestrator struct {
	cfg    config.ExplorerConfig
	logger *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg config.ExplorerConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: logger.Named("orchestrator")}
}

// Probe clicks the element through the selector fallback chain, waits for
// the settle delay and samples the virtual route, the real URL and popup
// presence. The three flags are independent of each other. hooks may be nil,
// in which case DOM insertions are not counted and a URL change is read
// from the URL alone.
func (o *Orchestrator) Probe(ctx context.Context, page schemas.Page, hooks *browser.HookGuard, el schemas.ElementDescriptor) schemas.ClickOutcome {
	start := time.Now()
	log := o.logger.With(zap.String("selector", el.Selector))
	m := &probeMachine{state: StateIdle, log: log}
	out := schemas.ClickOutcome{Selector: el.Selector, ElementType: el.Type}
	defer func() { out.Duration = time.Since(start) }()

	origin, err := page.CurrentURL(ctx)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.OriginURL = origin
	routeBefore, routeErr := browser.SampleRoute(ctx, page)
	requestsBefore := page.RequestCount()
	if hooks != nil {
		// Discard insertions that happened before this probe.
		if _, _, err := hooks.Drain(ctx); err != nil {
			log.Debug("Hook drain before probe failed.", zap.Error(err))
		}
	}

	m.to(StateActivating)
	used, err := o.activate(ctx, page, el.Selector)
	if err != nil {
		m.to(StateResolved)
		out.Error = err.Error()
		log.Debug("Element could not be activated.", zap.Error(err))
		return out
	}
	out.Activated = true
	out.UsedSelector = used

	m.to(StateObserving)
	if err := wait(ctx, o.cfg.SettleDelay); err != nil {
		out.Error = err.Error()
		m.to(StateResolved)
		return out
	}
	if routeAfter, err := browser.SampleRoute(ctx, page); err == nil && routeErr == nil && routeAfter != routeBefore {
		out.RouteChanged = true
		out.VirtualRoute = routeAfter
	}

	if err := wait(ctx, o.cfg.URLRecheckDelay); err != nil {
		out.Error = err.Error()
		m.to(StateResolved)
		return out
	}
	current, err := page.CurrentURL(ctx)
	if err != nil {
		current = origin
	}

	replaced := current != origin
	if hooks != nil {
		inserted, present, err := hooks.Drain(ctx)
		if err == nil {
			out.DOMInsertions = inserted
			replaced = !present
		}
		if replaced {
			if err := hooks.Install(ctx); err != nil {
				log.Debug("Could not reinstall hooks after navigation.", zap.Error(err))
			}
		}
	}
	if replaced && current != origin {
		out.URLChanged = true
		out.NewURL = current
		out.CrossHost = hostOf(current) != hostOf(origin)
	}

	if root, err := browser.Snapshot(ctx, page); err == nil {
		if desc, _ := popup.Detect(root); desc != nil {
			out.PopupDetected = true
			out.Popup = desc
		}
	} else {
		log.Debug("Snapshot for popup detection failed.", zap.Error(err))
	}

	if n := page.RequestCount() - requestsBefore; n > 0 {
		out.RequestCount = n
	}
	m.to(StateResolved)
	log.Debug("Probe resolved.",
		zap.Bool("route_changed", out.RouteChanged),
		zap.Bool("url_changed", out.URLChanged),
		zap.Bool("popup", out.PopupDetected),
		zap.Int("insertions", out.DOMInsertions))
	return out
}

// activate clicks the selector, then its positional-free form, then each
// shortened chain. The last error is classified as a resolution or an
// interaction failure.
func (o *Orchestrator) activate(ctx context.Context, page schemas.Page, sel string) (string, error) {
	var lastErr error
	for _, candidate := range selector.Fallbacks(sel) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := page.Click(ctx, candidate)
		if err == nil {
			if candidate != sel {
				o.logger.Debug("Activated through fallback selector.", zap.String("selector", sel), zap.String("used", candidate))
			}
			return candidate, nil
		}
		lastErr = err
	}
	kind := ErrInteraction
	if lastErr == nil || errors.Is(lastErr, browser.ErrElementNotFound) {
		kind = ErrResolution
	}
	return "", fmt.Errorf("%w: %w: %v", ErrActivation, kind, lastErr)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
