// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

const launchProbeTimeout = 30 * time.Second

// Launcher opens pages on a running browser.
type Launcher interface {
	NewPage(ctx context.Context) (schemas.Page, error)
	Shutdown(ctx context.Context) error
}

// NewLauncher starts the browser driver selected in the configuration.
func NewLauncher(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Launcher, error) {
	switch cfg.Driver {
	case config.DriverRod:
		return NewRodLauncher(ctx, cfg, logger)
	case config.DriverChromedp, "":
		return NewManager(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported browser driver %q", cfg.Driver)
	}
}

// Manager handles the lifecycle of a chromedp driven browser process.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the entire browser process. All pages derive from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser process and verifies it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...")

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)
	m.allocatorCtx = allocCtx
	m.allocatorCancel = cancel

	testCtx, cancelTest := context.WithTimeout(allocCtx, launchProbeTimeout)
	testCtx, cancelTestCtx := chromedp.NewContext(testCtx)
	defer cancelTestCtx()
	defer cancelTest()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the process flags from the configuration.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions[:] {
		opts = append(opts, opt)
	}

	width, height := m.cfg.ViewportSize()
	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
		chromedp.WindowSize(width, height),
	)

	if path := ResolveChromePath(m.cfg.BinaryPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// NewPage opens a tab.
func (m *Manager) NewPage(ctx context.Context) (schemas.Page, error) {
	p, err := newCDPPage(ctx, m.allocatorCtx, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}
	m.wg.Add(1)
	p.onClose = m.wg.Done
	return p, nil
}

// Shutdown waits for open pages and then terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.allocatorCancel != nil {
		m.logger.Info("Shutting down main browser process...")
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
