// internal/browser/cdp_page.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

// namedKeys maps key names to the sequences chromedp dispatches.
var namedKeys = map[string]string{
	"Escape":    kb.Escape,
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Backspace": kb.Backspace,
}

// CDPPage is a schemas.Page backed by a chromedp tab.
type CDPPage struct {
	ctx    context.Context // tab context; carries the CDP target
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	requests atomic.Int64

	closeOnce sync.Once
	onClose   func()
}

var _ schemas.Page = (*CDPPage)(nil)

func newCDPPage(ctx, allocatorCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*CDPPage, error) {
	var ctxOpts []chromedp.ContextOption
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	tabCtx, cancel := chromedp.NewContext(allocatorCtx, ctxOpts...)

	p := &CDPPage{
		ctx:    tabCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.Named("cdp_page"),
	}

	// The first Run allocates the tab and must use the tab context itself;
	// a derived context would take the target down with it.
	if err := ctx.Err(); err != nil {
		cancel()
		return nil, err
	}
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize tab: %w", err)
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*network.EventRequestWillBeSent); ok {
			p.requests.Add(1)
		}
	})
	return p, nil
}

// run executes actions on the tab under the operational context and an
// optional timeout.
func (p *CDPPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate implements schemas.Page.
func (p *CDPPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx, p.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click implements schemas.Page.
func (p *CDPPage) Click(ctx context.Context, selector string) error {
	if err := CheckClickable(ctx, p, selector); err != nil {
		return err
	}
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("%w: click on %s: %v", ErrNotInteractable, selector, err)
	}
	return nil
}

// Type implements schemas.Page.
func (p *CDPPage) Type(ctx context.Context, selector, text string) error {
	if err := CheckClickable(ctx, p, selector); err != nil {
		return err
	}
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("%w: typing into %s: %v", ErrNotInteractable, selector, err)
	}
	return nil
}

// PressKey implements schemas.Page.
func (p *CDPPage) PressKey(ctx context.Context, key string) error {
	seq, ok := namedKeys[key]
	if !ok {
		seq = key
	}
	return p.run(ctx, p.cfg.ActionTimeout, chromedp.KeyEvent(seq))
}

// Evaluate implements schemas.Page.
func (p *CDPPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, p.cfg.ActionTimeout,
		chromedp.Evaluate(script, res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithAwaitPromise(true)
		}),
	)
}

// CurrentURL implements schemas.Page.
func (p *CDPPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Reload implements schemas.Page.
func (p *CDPPage) Reload(ctx context.Context) error {
	return p.run(ctx, p.cfg.NavigationTimeout, chromedp.Reload())
}

// Screenshot implements schemas.Page.
func (p *CDPPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, p.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// RequestCount implements schemas.Page.
func (p *CDPPage) RequestCount() int {
	return int(p.requests.Load())
}

// Close implements schemas.Page.
func (p *CDPPage) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}
