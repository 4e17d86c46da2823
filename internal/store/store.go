package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store is a PostgreSQL results sink. Every page visit is committed in its
// own transaction when it is recorded; Flush only writes the run summary.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the result tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

var outcomeColumns = []string{
	"visit_id", "seq", "selector", "used_selector", "origin_url", "element_type", "activated",
	"route_changed", "url_changed", "popup_detected", "new_url", "virtual_route",
	"cross_host", "request_count", "dom_insertions", "duration_ms", "error",
}

var formColumns = []string{
	"visit_id", "seq", "form_selector", "success", "new_url", "error_signals",
	"validation_details", "attempts", "fields_used", "recovered",
}

const sqlInsertVisit = `
        INSERT INTO page_visits (id, run_id, url, depth, started_at, finished_at, elements, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING;
    `

const sqlInsertPopup = `
        INSERT INTO popup_reports (run_id, visit_id, page_url, selector, kind, text_excerpt, forms_present, final_state, tier, degraded, error, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `

const sqlUpsertRun = `
        INSERT INTO exploration_runs (id, start_url, started_at, finished_at, pages_visited, elements_probed, activated,
            route_changes, url_changes, popups_detected, forms_submitted, forms_succeeded, degraded_popups, interrupted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            pages_visited = EXCLUDED.pages_visited,
            elements_probed = EXCLUDED.elements_probed,
            activated = EXCLUDED.activated,
            route_changes = EXCLUDED.route_changes,
            url_changes = EXCLUDED.url_changes,
            popups_detected = EXCLUDED.popups_detected,
            forms_submitted = EXCLUDED.forms_submitted,
            forms_succeeded = EXCLUDED.forms_succeeded,
            degraded_popups = EXCLUDED.degraded_popups,
            interrupted = EXCLUDED.interrupted;
    `

// Record writes the visit row and bulk copies its click outcomes and form
// submissions in one transaction.
func (s *Store) Record(ctx context.Context, page schemas.PageResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertVisit,
		page.VisitID, page.RunID, page.URL, page.Depth,
		page.StartedAt.UTC(), page.FinishedAt.UTC(), page.Elements, page.Error,
	); err != nil {
		return fmt.Errorf("failed to insert page visit: %w", err)
	}

	if len(page.Outcomes) > 0 {
		if err := s.persistOutcomes(ctx, tx, page.VisitID, page.Outcomes); err != nil {
			return err
		}
	}
	if len(page.Forms) > 0 {
		if err := s.persistForms(ctx, tx, page.VisitID, page.Forms); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Page visit persisted.", zap.String("visit_id", page.VisitID), zap.Int("outcomes", len(page.Outcomes)))
	return nil
}

func (s *Store) persistOutcomes(ctx context.Context, tx pgx.Tx, visitID string, outcomes []schemas.ClickOutcome) error {
	rows := make([][]interface{}, len(outcomes))
	for i, o := range outcomes {
		rows[i] = []interface{}{
			visitID, i, o.Selector, o.UsedSelector, o.OriginURL, string(o.ElementType), o.Activated,
			o.RouteChanged, o.URLChanged, o.PopupDetected, o.NewURL, o.VirtualRoute,
			o.CrossHost, o.RequestCount, o.DOMInsertions, o.Duration.Milliseconds(), o.Error,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"click_outcomes"}, outcomeColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy click outcomes: %w", err)
	}
	if int(copyCount) != len(outcomes) {
		return fmt.Errorf("mismatch in copied outcomes count: expected %d, got %d", len(outcomes), copyCount)
	}
	return nil
}

func (s *Store) persistForms(ctx context.Context, tx pgx.Tx, visitID string, forms []schemas.SubmissionResult) error {
	rows := make([][]interface{}, len(forms))
	for i, f := range forms {
		signals := f.ErrorSignals
		if signals == nil {
			signals = []string{}
		}
		used := make([]int32, len(f.FieldsUsed))
		for j, n := range f.FieldsUsed {
			used[j] = int32(n)
		}
		rows[i] = []interface{}{
			visitID, i, f.FormSelector, f.Success, f.NewURL, signals,
			f.ValidationDetails, f.Attempts, used, f.Recovered,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"form_submissions"}, formColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy form submissions: %w", err)
	}
	if int(copyCount) != len(forms) {
		return fmt.Errorf("mismatch in copied forms count: expected %d, got %d", len(forms), copyCount)
	}
	return nil
}

// RecordPopup inserts one popup recovery report.
func (s *Store) RecordPopup(ctx context.Context, report schemas.PopupReport) error {
	d := report.Descriptor
	_, err := s.pool.Exec(ctx, sqlInsertPopup,
		report.RunID, report.VisitID, report.PageURL, d.Selector, string(d.Kind), d.TextExcerpt,
		d.FormsPresent, report.FinalState, report.Tier, report.Degraded, report.Error,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert popup report: %w", err)
	}
	return nil
}

// Flush upserts the run summary. Visits were already committed by Record.
func (s *Store) Flush(ctx context.Context, summary schemas.RunSummary) error {
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.pool.Exec(ctx, sqlUpsertRun,
		summary.RunID, summary.StartURL, summary.StartedAt.UTC(), finished.UTC(),
		summary.PagesVisited, summary.ElementsProbed, summary.Activated,
		summary.RouteChanges, summary.URLChanges, summary.PopupsDetected,
		summary.FormsSubmitted, summary.FormsSucceeded, summary.DegradedPopups,
		summary.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run summary: %w", err)
	}
	s.log.Info("Run summary persisted.", zap.String("run_id", summary.RunID), zap.Int("pages", summary.PagesVisited))
	return nil
}

// GetOutcomesByRunID returns every click outcome of a run in exploration order.
func (s *Store) GetOutcomesByRunID(ctx context.Context, runID string) ([]schemas.ClickOutcome, error) {
	query := `
        SELECT o.selector, o.used_selector, o.origin_url, o.element_type, o.activated, o.route_changed, o.url_changed,
               o.popup_detected, o.new_url, o.virtual_route, o.cross_host, o.request_count, o.dom_insertions,
               o.duration_ms, o.error
        FROM click_outcomes o
        JOIN page_visits v ON v.id = o.visit_id
        WHERE v.run_id = $1
        ORDER BY v.started_at ASC, o.seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []schemas.ClickOutcome
	for rows.Next() {
		var o schemas.ClickOutcome
		var elementType string
		var durationMS int64

		err := rows.Scan(
			&o.Selector, &o.UsedSelector, &o.OriginURL, &elementType, &o.Activated, &o.RouteChanged, &o.URLChanged,
			&o.PopupDetected, &o.NewURL, &o.VirtualRoute, &o.CrossHost, &o.RequestCount, &o.DOMInsertions,
			&durationMS, &o.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}

		o.ElementType = schemas.ElementType(elementType)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return outcomes, nil
}
