// internal/popup/recovery.go
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/classify"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/dom"
	"github.com/xkilldash9x/scalpel-explore/internal/selector"
)

var (
	// ErrPopupPersistent is reported when an overlay survives every cleanup tier.
	ErrPopupPersistent = errors.New("popup persisted after all recovery tiers")
	// ErrUnstable is returned by ForceRecover when the page kept changing.
	ErrUnstable = errors.New("page did not stabilize")
)

// Escalation tiers recorded in PopupReport.Tier.
const (
	TierDismiss = iota
	TierRepeatDismiss
	TierForceCleanup
	TierReload
)

// FormSubmitter runs the form pipeline over the forms under a scope selector.
type FormSubmitter interface {
	SubmitWithin(ctx context.Context, page schemas.Page, scope string) ([]schemas.SubmissionResult, error)
}

var dismissTexts = map[string]bool{
	"确定": true, "ok": true, "确认": true, "confirm": true, "是": true, "yes": true,
}

var primaryTokens = []string{"primary", "confirm", "btn-ok", "ok-btn", "submit"}

var buttonLike = dom.MustCompile(`button, a, [role="button"], input[type="button"], input[type="submit"]`)

// Recovery drives the popup recovery state machine.
type Recovery struct {
	cfg        config.PopupConfig
	classifier *classify.Classifier
	forms      FormSubmitter
	logger     *zap.Logger
}

// New creates a Recovery. Forms found inside popups are only submitted once
// a FormSubmitter is attached.
func New(cfg config.PopupConfig, logger *zap.Logger) *Recovery {
	if cfg.MaxDismissAttempts <= 0 {
		cfg.MaxDismissAttempts = 3
	}
	if cfg.StabilityInterval <= 0 {
		cfg.StabilityInterval = 250 * time.Millisecond
	}
	if cfg.StabilityTimeout <= 0 {
		cfg.StabilityTimeout = 5 * time.Second
	}
	return &Recovery{
		cfg:        cfg,
		classifier: classify.New(),
		logger:     logger.Named("popup"),
	}
}

// AttachForms wires the form pipeline used by the FormSubflow state.
func (r *Recovery) AttachForms(f FormSubmitter) {
	r.forms = f
}

// DetectOnPage snapshots the page and runs Detect.
func (r *Recovery) DetectOnPage(ctx context.Context, page schemas.Page) (*schemas.PopupDescriptor, error) {
	desc, _, _, err := r.detect(ctx, page)
	return desc, err
}

func (r *Recovery) detect(ctx context.Context, page schemas.Page) (*schemas.PopupDescriptor, *dom.Node, *dom.Node, error) {
	root, err := browser.Snapshot(ctx, page)
	if err != nil {
		return nil, nil, nil, err
	}
	desc, overlay := Detect(root)
	return desc, root, overlay, nil
}

// Recover runs one full recovery cycle. found is false when no popup was
// showing; the report is then only informative.
func (r *Recovery) Recover(ctx context.Context, page schemas.Page) (report schemas.PopupReport, found bool) {
	report.PageURL, _ = page.CurrentURL(ctx)
	m := machine{log: r.logger.With(zap.String("url", report.PageURL))}

	desc, root, overlay, err := r.detect(ctx, page)
	if err != nil {
		report.Error = err.Error()
		report.FinalState = m.to(StateNoPopup).String()
		return report, false
	}
	if desc == nil {
		report.FinalState = m.to(StateNoPopup).String()
		return report, false
	}
	report.Descriptor = *desc
	m.log = m.log.With(zap.String("popup", desc.Selector), zap.String("kind", string(desc.Kind)))
	m.to(StatePopupFound)

	m.to(StateAnalyzeNestedForm)
	if r.forms != nil && hasNestedForm(r.classifier, root, overlay) {
		m.to(StateFormSubflow)
		results, err := r.forms.SubmitWithin(ctx, page, desc.Selector)
		if err != nil {
			m.log.Warn("Form inside popup could not be submitted.", zap.Error(err))
		}
		report.Forms = results
	} else {
		m.to(StateSimpleDismiss)
		r.dismiss(ctx, page, root, overlay)
	}

	m.to(StateCleanup)
	tier, err := r.cleanup(ctx, page)
	report.Tier = tier
	if err != nil {
		report.Error = err.Error()
		m.log.Warn("Popup recovery left an overlay behind.", zap.Int("tier", tier), zap.Error(err))
	}

	m.to(StateStabilityCheck)
	if r.StabilityCheck(ctx, page) {
		m.to(StateOperational)
	} else {
		report.Degraded = true
		m.to(StateDegraded)
		m.log.Warn("Page did not stabilize after popup recovery, continuing degraded.")
	}
	report.FinalState = m.state.String()
	return report, true
}

// ForceRecover applies the forced cleanup and reload tiers without trying
// to dismiss anything, then waits for the page to settle.
func (r *Recovery) ForceRecover(ctx context.Context, page schemas.Page) error {
	log := r.logger.Named("force")
	tier, err := r.escalate(ctx, page)
	if err != nil {
		return err
	}
	log.Debug("Forced recovery finished.", zap.Int("tier", tier))
	if !r.StabilityCheck(ctx, page) {
		return ErrUnstable
	}
	return nil
}

// cleanup re-detects after the first dismissal and escalates while an
// overlay is still showing. The first dismissal counts toward the attempts.
func (r *Recovery) cleanup(ctx context.Context, page schemas.Page) (int, error) {
	if !r.present(ctx, page) {
		return TierDismiss, nil
	}
	for attempt := 1; attempt < r.cfg.MaxDismissAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return TierRepeatDismiss, err
		}
		_, root, overlay, err := r.detect(ctx, page)
		if err != nil || overlay == nil {
			return TierRepeatDismiss, nil
		}
		r.dismiss(ctx, page, root, overlay)
		if !r.present(ctx, page) {
			return TierRepeatDismiss, nil
		}
	}
	return r.escalate(ctx, page)
}

// escalate runs tier 2 (forced overlay removal) and tier 3 (reload).
func (r *Recovery) escalate(ctx context.Context, page schemas.Page) (int, error) {
	removed, err := browser.ForceCleanup(ctx, page)
	if err != nil {
		r.logger.Debug("Forced overlay cleanup failed.", zap.Error(err))
	} else {
		r.logger.Debug("Forced overlay cleanup ran.", zap.Int("removed", removed))
	}
	if !r.present(ctx, page) {
		return TierForceCleanup, nil
	}

	if err := page.Reload(ctx); err != nil {
		return TierReload, fmt.Errorf("reload failed during popup recovery: %w", err)
	}
	if r.present(ctx, page) {
		return TierReload, ErrPopupPersistent
	}
	return TierReload, nil
}

func (r *Recovery) present(ctx context.Context, page schemas.Page) bool {
	desc, _, _, err := r.detect(ctx, page)
	if err != nil {
		// An unreadable page is treated as still blocked so escalation continues.
		return true
	}
	return desc != nil
}

// dismiss tries the dismissal controls in order: primary or confirm styled
// buttons, footer buttons, buttons labelled with an acknowledgement, and
// finally the Escape key.
func (r *Recovery) dismiss(ctx context.Context, page schemas.Page, root, overlay *dom.Node) string {
	synth := selector.New(overlay, selector.PopupDepth)
	for _, group := range []struct {
		name  string
		match func(*dom.Node) bool
	}{
		{"primary", isPrimary},
		{"footer", func(n *dom.Node) bool { return inFooter(n, overlay) }},
		{"text", func(n *dom.Node) bool { return dismissTexts[strings.ToLower(strings.TrimSpace(n.Text))] }},
	} {
		for _, n := range buttonLike.QueryAll(overlay) {
			if !n.Visible() || !group.match(n) {
				continue
			}
			sel, _ := synth.Synthesize(n)
			if sel == "" {
				continue
			}
			if err := page.Click(ctx, sel); err != nil {
				r.logger.Debug("Dismiss candidate failed.", zap.String("method", group.name), zap.String("selector", sel), zap.Error(err))
				continue
			}
			r.logger.Debug("Popup dismissed.", zap.String("method", group.name), zap.String("selector", sel))
			r.wait(ctx)
			return group.name
		}
	}

	if err := page.PressKey(ctx, "Escape"); err != nil {
		r.logger.Debug("Escape key failed.", zap.Error(err))
	}
	r.wait(ctx)
	return "escape"
}

func isPrimary(n *dom.Node) bool {
	classes := n.ClassString()
	for _, tok := range primaryTokens {
		if strings.Contains(classes, tok) {
			return true
		}
	}
	return false
}

func inFooter(n, overlay *dom.Node) bool {
	for cur := n.Parent; cur != nil && cur != overlay.Parent; cur = cur.Parent {
		if cur.Tag == "footer" || strings.Contains(cur.ClassString(), "footer") {
			return true
		}
	}
	return false
}

// StabilityCheck polls the node count and loading indicators until two
// consecutive reads agree with nothing loading. It returns false on timeout.
func (r *Recovery) StabilityCheck(ctx context.Context, page schemas.Page) bool {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StabilityTimeout)
	defer cancel()

	ticker := time.NewTicker(r.cfg.StabilityInterval)
	defer ticker.Stop()

	var prev *browser.Probe
	for {
		p, err := browser.ReadProbe(ctx, page)
		switch {
		case err != nil:
			prev = nil
		case prev != nil && !p.Loading && !prev.Loading && p.Nodes == prev.Nodes:
			return true
		default:
			prev = &p
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (r *Recovery) wait(ctx context.Context) {
	if r.cfg.DismissWait <= 0 {
		return
	}
	t := time.NewTimer(r.cfg.DismissWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// machine logs state transitions.
type machine struct {
	state State
	log   *zap.Logger
}

func (m *machine) to(next State) State {
	m.log.Debug("Popup recovery transition.", zap.Stringer("from", m.state), zap.Stringer("to", next))
	m.state = next
	return next
}
