// internal/browser/rod_page.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

var rodKeys = map[string]input.Key{
	"Escape":    input.Escape,
	"Enter":     input.Enter,
	"Tab":       input.Tab,
	"Backspace": input.Backspace,
}

// RodLauncher drives the browser through go-rod.
type RodLauncher struct {
	launch  *launcher.Launcher
	browser *rod.Browser
	cfg     config.BrowserConfig
	logger  *zap.Logger
}

// NewRodLauncher launches a browser and connects to it.
func NewRodLauncher(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*RodLauncher, error) {
	log := logger.Named("rod_launcher")

	l := launcher.New().Context(ctx).Headless(cfg.Headless)
	if path := ResolveChromePath(cfg.BinaryPath); path != "" {
		l = l.Bin(path)
	}
	if runtime.GOOS == "linux" {
		l = l.NoSandbox(true).Set(flags.Flag("disable-dev-shm-usage"))
	}
	if cfg.IgnoreTLSErrors {
		l = l.Set(flags.Flag("ignore-certificate-errors"))
	}
	for _, arg := range cfg.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	log.Info("Browser launched successfully and is responsive.", zap.String("control_url", controlURL))
	return &RodLauncher{launch: l, browser: b, cfg: cfg, logger: log}, nil
}

// NewPage implements Launcher.
func (r *RodLauncher) NewPage(ctx context.Context) (schemas.Page, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	// Detach the page from the creation context; operations pass their own.
	page = page.Context(r.browser.GetContext())

	width, height := r.cfg.ViewportSize()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: width, Height: height, DeviceScaleFactor: 1}); err != nil {
		r.logger.Debug("Failed to set viewport.", zap.Error(err))
	}

	p := &RodPage{page: page, cfg: r.cfg, logger: r.logger.Named("rod_page")}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		r.logger.Debug("Network domain unavailable, request counting disabled.", zap.Error(err))
	} else {
		go page.EachEvent(func(*proto.NetworkRequestWillBeSent) {
			p.requests.Add(1)
		})()
	}
	return p, nil
}

// Shutdown implements Launcher.
func (r *RodLauncher) Shutdown(ctx context.Context) error {
	err := r.browser.Close()
	r.launch.Kill()
	r.launch.Cleanup()
	return err
}

// RodPage is a schemas.Page backed by a go-rod page.
type RodPage struct {
	page     *rod.Page
	cfg      config.BrowserConfig
	logger   *zap.Logger
	requests atomic.Int64
}

var _ schemas.Page = (*RodPage)(nil)

func (p *RodPage) scoped(ctx context.Context, timeout time.Duration) *rod.Page {
	pg := p.page.Context(ctx)
	if timeout > 0 {
		pg = pg.Timeout(timeout)
	}
	return pg
}

// Navigate implements schemas.Page.
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	pg := p.scoped(ctx, p.cfg.NavigationTimeout)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Click implements schemas.Page.
func (p *RodPage) Click(ctx context.Context, selector string) error {
	if err := CheckClickable(ctx, p, selector); err != nil {
		return err
	}
	el, err := p.scoped(ctx, p.cfg.ActionTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrElementNotFound, selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: click on %s: %v", ErrNotInteractable, selector, err)
	}
	return nil
}

// Type implements schemas.Page.
func (p *RodPage) Type(ctx context.Context, selector, text string) error {
	if err := CheckClickable(ctx, p, selector); err != nil {
		return err
	}
	el, err := p.scoped(ctx, p.cfg.ActionTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrElementNotFound, selector, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("%w: typing into %s: %v", ErrNotInteractable, selector, err)
	}
	return nil
}

// PressKey implements schemas.Page.
func (p *RodPage) PressKey(ctx context.Context, key string) error {
	kb := p.scoped(ctx, p.cfg.ActionTimeout).Keyboard
	if k, ok := rodKeys[key]; ok {
		return kb.Type(k)
	}
	keys := make([]input.Key, 0, len(key))
	for _, r := range key {
		keys = append(keys, input.Key(r))
	}
	return kb.Type(keys...)
}

// Evaluate implements schemas.Page.
func (p *RodPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	obj, err := p.scoped(ctx, p.cfg.ActionTimeout).Evaluate(&rod.EvalOptions{
		JS:           "() => " + script,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	if res == nil || obj == nil {
		return nil
	}
	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to read evaluation result: %w", err)
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to unmarshal JS result into target type: %w", err)
	}
	return nil
}

// CurrentURL implements schemas.Page.
func (p *RodPage) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.scoped(ctx, p.cfg.ActionTimeout).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Reload implements schemas.Page.
func (p *RodPage) Reload(ctx context.Context) error {
	pg := p.scoped(ctx, p.cfg.NavigationTimeout)
	if err := pg.Reload(); err != nil {
		return err
	}
	return pg.WaitLoad()
}

// Screenshot implements schemas.Page.
func (p *RodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.scoped(ctx, p.cfg.ActionTimeout).Screenshot(false, nil)
}

// RequestCount implements schemas.Page.
func (p *RodPage) RequestCount() int {
	return int(p.requests.Load())
}

// Close implements schemas.Page.
func (p *RodPage) Close(ctx context.Context) error {
	return p.page.Close()
}
