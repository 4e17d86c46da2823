// cmd/explore.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/browser"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
	"github.com/xkilldash9x/scalpel-explore/internal/explorer"
	"github.com/xkilldash9x/scalpel-explore/internal/frontier"
	"github.com/xkilldash9x/scalpel-explore/internal/observability"
	"github.com/xkilldash9x/scalpel-explore/internal/oracle"
	"github.com/xkilldash9x/scalpel-explore/internal/results"
	"github.com/xkilldash9x/scalpel-explore/internal/store"
)

const shutdownTimeout = 15 * time.Second

// flagBindings maps explore flags onto configuration keys. Flags only
// override the file and environment when they are set explicitly.
var flagBindings = map[string]string{
	"depth":              "frontier.max_depth",
	"max-pages":          "frontier.max_pages",
	"include-subdomains": "frontier.include_subdomains",
	"max-elements":       "explorer.max_elements_per_page",
	"settle-delay":       "explorer.settle_delay",
	"oracle-hints":       "explorer.oracle_element_hints",
	"submit-forms":       "explorer.submit_forms",
	"driver":             "browser.driver",
	"headless":           "browser.headless",
	"chrome":             "browser.binary_path",
	"provider":           "oracle.provider",
	"model":              "oracle.model",
	"endpoint":           "oracle.endpoint",
	"output":             "results.dir",
	"format":             "results.format",
	"screenshots":        "form.screenshot_on_failure",
	"database-url":       "database.url",
}

func newExploreCmd(a *app) *cobra.Command {
	exploreCmd := &cobra.Command{
		Use:   "explore <url>",
		Short: "Explore a web application starting from the given URL",
		Long: `Explore loads the start URL in a browser and activates every interactive
element it finds, recording route changes, navigations and popups. Forms are
filled and submitted with values from the configured oracle. Newly discovered
pages are explored breadth first within the start URL's registrable domain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startURL, err := normalizeStartURL(args[0])
			if err != nil {
				return err
			}
			summary, err := runExplore(cmd.Context(), a.cfg, startURL, observability.GetLogger())
			printSummary(cmd.OutOrStdout(), summary, a.cfg.Results.Dir)
			return err
		},
	}

	f := exploreCmd.Flags()
	f.IntP("depth", "d", 0, "maximum crawl depth")
	f.Int("max-pages", 0, "maximum number of pages to visit (0 means unlimited)")
	f.Bool("include-subdomains", false, "follow links to subdomains of the start host")
	f.Int("max-elements", 0, "maximum elements probed per page (0 means unlimited)")
	f.Duration("settle-delay", 0, "wait after each click before sampling the page")
	f.Bool("oracle-hints", false, "ask the oracle for extra interactive elements")
	f.Bool("submit-forms", true, "fill and submit forms before probing elements")
	f.String("driver", "", "browser driver (chromedp, rod)")
	f.Bool("headless", true, "run the browser without a window")
	f.String("chrome", "", "path to the Chrome or Chromium binary")
	f.String("provider", "", "oracle provider (stub, gemini, openai, anthropic)")
	f.String("model", "", "oracle model name")
	f.String("endpoint", "", "oracle endpoint override")
	f.StringP("output", "o", "", "results directory")
	f.StringP("format", "f", "", "results format (json, csv)")
	f.Bool("screenshots", false, "save a screenshot when a form cannot be submitted")
	f.String("database-url", "", "also record results in this PostgreSQL database")

	for name, key := range flagBindings {
		mustBind(a.v, key, f.Lookup(name))
	}
	return exploreCmd
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag for %s: %v", key, err))
	}
}

// normalizeStartURL adds an https scheme to bare hosts.
func normalizeStartURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid start URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("start URL must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("start URL %q has no host", raw)
	}
	return u.String(), nil
}

// runExplore wires the browser, oracle, frontier and sinks around an
// explorer.Engine and runs it. The summary is returned even on error.
func runExplore(ctx context.Context, cfg *config.Config, startURL string, logger *zap.Logger) (schemas.RunSummary, error) {
	if cfg == nil {
		return schemas.RunSummary{}, errors.New("configuration was not loaded")
	}
	logger.Info("Starting exploration.",
		zap.String("url", startURL),
		zap.String("driver", string(cfg.Browser.Driver)),
		zap.String("oracle", string(cfg.Oracle.Provider)),
		zap.Int("max_depth", cfg.Frontier.MaxDepth))

	front, err := frontier.New(startURL, cfg.Frontier, logger)
	if err != nil {
		return schemas.RunSummary{}, fmt.Errorf("failed to initialize frontier: %w", err)
	}

	sink, closeSinks, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return schemas.RunSummary{}, err
	}
	defer closeSinks()

	orc, err := oracle.NewFromConfig(ctx, cfg.Oracle, logger)
	if err != nil {
		return schemas.RunSummary{}, err
	}
	defer func() {
		if err := orc.Close(); err != nil {
			logger.Warn("Failed to close oracle.", zap.Error(err))
		}
	}()

	launcher, err := browser.NewLauncher(ctx, cfg.Browser, logger)
	if err != nil {
		return schemas.RunSummary{}, fmt.Errorf("failed to start browser: %w", err)
	}
	page, err := launcher.NewPage(ctx)
	if err != nil {
		shutdownBrowser(launcher, nil, logger)
		return schemas.RunSummary{}, fmt.Errorf("failed to open page: %w", err)
	}
	defer shutdownBrowser(launcher, page, logger)

	engine, err := explorer.New(cfg, explorer.Deps{
		Page:     page,
		Frontier: front,
		Sink:     sink,
		Oracle:   orc,
	}, logger)
	if err != nil {
		return schemas.RunSummary{}, err
	}
	return engine.Run(ctx, startURL)
}

// openSinks always writes result files and adds the Postgres store when a
// database URL is configured.
func openSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.ResultsSink, func(), error) {
	files, err := results.New(cfg.Results, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize results sink: %w", err)
	}
	if cfg.Database.URL == "" {
		return files, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize database store: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Recording results in PostgreSQL as well.")
	return results.NewMultiSink(files, db), pool.Close, nil
}

// shutdownBrowser closes the page and the browser on a fresh context since
// the root context may already be cancelled.
func shutdownBrowser(launcher browser.Launcher, page schemas.Page, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if page != nil {
		if err := page.Close(ctx); err != nil {
			logger.Debug("Failed to close page.", zap.Error(err))
		}
	}
	if err := launcher.Shutdown(ctx); err != nil {
		logger.Warn("Error during browser shutdown.", zap.Error(err))
	}
}

func printSummary(w io.Writer, s schemas.RunSummary, dir string) {
	if s.RunID == "" {
		return
	}
	status := "complete"
	if s.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "\nExploration %s. Run ID: %s\n", status, s.RunID)
	fmt.Fprintf(w, "  pages visited:    %d\n", s.PagesVisited)
	fmt.Fprintf(w, "  elements probed:  %d (%d activated)\n", s.ElementsProbed, s.Activated)
	fmt.Fprintf(w, "  route changes:    %d\n", s.RouteChanges)
	fmt.Fprintf(w, "  url changes:      %d\n", s.URLChanges)
	fmt.Fprintf(w, "  popups:           %d (%d degraded)\n", s.PopupsDetected, s.DegradedPopups)
	fmt.Fprintf(w, "  forms:            %d submitted, %d succeeded\n", s.FormsSubmitted, s.FormsSucceeded)
	fmt.Fprintf(w, "Results written to %s\n", dir)
}
