// internal/results/sink.go
package results

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
	"github.com/xkilldash9x/scalpel-explore/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileSink buffers everything a run observes and writes it to the results
// directory on Flush. Flush rewrites the files from the full buffer, so
// calling it again after more records were added is safe.
type FileSink struct {
	dir    string
	format Format
	scores ScoreConfig
	logger *zap.Logger

	mu     sync.Mutex
	pages  []schemas.PageResult
	clicks []ClickRecord
	popups []schemas.PopupReport
}

// New creates a FileSink for the configured directory and format. The
// directory is created if it does not exist.
func New(cfg config.ResultsConfig, logger *zap.Logger) (*FileSink, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand results dir %q: %w", cfg.Dir, err)
	}

	format := Format(strings.ToLower(cfg.Format))
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatCSV:
	default:
		return nil, fmt.Errorf("unsupported results format: %s", cfg.Format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results dir %s: %w", dir, err)
	}

	return &FileSink{
		dir:    dir,
		format: format,
		scores: DefaultScoreConfig(),
		logger: logger.Named("results"),
		clicks: []ClickRecord{},
		popups: []schemas.PopupReport{},
	}, nil
}

// Dir is the directory files are written to.
func (s *FileSink) Dir() string { return s.dir }

// Record buffers a finished page visit.
func (s *FileSink) Record(_ context.Context, page schemas.PageResult) error {
	records := Enrich(page, s.scores)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, page)
	s.clicks = append(s.clicks, records...)
	return nil
}

// RecordPopup buffers one popup recovery report.
func (s *FileSink) RecordPopup(_ context.Context, report schemas.PopupReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.popups = append(s.popups, report)
	return nil
}

// Flush writes the click and popup files in the configured format and the
// scan report as JSON.
func (s *FileSink) Flush(ctx context.Context, summary schemas.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := "." + string(s.format)
	clickPath := filepath.Join(s.dir, ClickFile+ext)
	popupPath := filepath.Join(s.dir, PopupFile+ext)
	reportPath := filepath.Join(s.dir, ReportFile)

	switch s.format {
	case FormatCSV:
		if err := writeAtomic(clickPath, func(w io.Writer) error { return writeClicksCSV(w, s.clicks) }); err != nil {
			return err
		}
		if err := writeAtomic(popupPath, func(w io.Writer) error { return writePopupsCSV(w, s.popups) }); err != nil {
			return err
		}
	default:
		if err := writeAtomic(clickPath, jsonWriter(s.clicks)); err != nil {
			return err
		}
		if err := writeAtomic(popupPath, jsonWriter(s.popups)); err != nil {
			return err
		}
	}

	report := GenerateReport(summary, s.pages, s.clicks)
	if err := writeAtomic(reportPath, jsonWriter(report)); err != nil {
		return err
	}

	s.logger.Info("Results written.",
		zap.String("dir", s.dir),
		zap.String("format", string(s.format)),
		zap.Int("clicks", len(s.clicks)),
		zap.Int("popups", len(s.popups)),
		zap.Bool("interrupted", summary.Interrupted))
	return nil
}

func jsonWriter(v interface{}) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// writeAtomic writes through a temporary file in the same directory and
// renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmp.Name())
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
