// internal/browser/hooks.go
package browser

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

const hookTeardownTimeout = 3 * time.Second

type hookState struct {
	Present  bool `json:"present"`
	Inserted int  `json:"inserted"`
}

// HookGuard owns the in-page DOM insertion hooks for one page visit. The
// hooks patch appendChild and insertBefore and attach a MutationObserver;
// Teardown restores the originals and must run on every exit path:
//
//	guard, err := browser.InstallHooks(ctx, page, logger)
//	if err != nil { ... }
//	defer guard.Teardown(ctx)
type HookGuard struct {
	page   schemas.Page
	logger *zap.Logger
	active bool
}

// InstallHooks installs the hooks and returns the guard that removes them.
func InstallHooks(ctx context.Context, page schemas.Page, logger *zap.Logger) (*HookGuard, error) {
	g := &HookGuard{page: page, logger: logger.Named("hooks")}
	if err := g.Install(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// Install (re)installs the hooks. It is idempotent, and is called again
// after the document was replaced by a navigation.
func (g *HookGuard) Install(ctx context.Context) error {
	var st hookState
	if err := evaluate(ctx, g.page, ScriptHooks, &st, "install"); err != nil {
		return err
	}
	g.active = true
	return nil
}

// Drain returns the number of element insertions seen since the previous
// drain. present is false when the hooks are gone, meaning the document
// was replaced since they were installed.
func (g *HookGuard) Drain(ctx context.Context) (inserted int, present bool, err error) {
	var st hookState
	if err := evaluate(ctx, g.page, ScriptHooks, &st, "drain"); err != nil {
		return 0, false, err
	}
	return st.Inserted, st.Present, nil
}

// Teardown removes the hooks. It runs under its own short deadline, detached
// from ctx's cancellation, so an aborted visit still restores the page.
func (g *HookGuard) Teardown(ctx context.Context) {
	if g == nil || !g.active {
		return
	}
	g.active = false

	tctx, cancel := context.WithTimeout(Detach(ctx), hookTeardownTimeout)
	defer cancel()

	var st hookState
	if err := evaluate(tctx, g.page, ScriptHooks, &st, "teardown"); err != nil {
		g.logger.Debug("Hook teardown failed (non-critical).", zap.Error(err))
		return
	}
	g.logger.Debug("Hooks removed.", zap.Int("pending_insertions", st.Inserted))
}
