package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyTime accepts any UTC timestamp.
var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	t, ok := v.(time.Time)
	return ok && t.Location() == time.UTC
})

func newMockStore(t *testing.T, logger *zap.Logger) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	store, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return mockPool, store
}

func samplePage() schemas.PageResult {
	started := time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)
	return schemas.PageResult{
		RunID:      uuid.NewString(),
		VisitID:    uuid.NewString(),
		URL:        "https://shop.example.com/",
		Depth:      1,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Elements:   2,
		Outcomes: []schemas.ClickOutcome{
			{Selector: "#cart", ElementType: schemas.ElementButton, Activated: true, PopupDetected: true, OriginURL: "https://shop.example.com/"},
			{Selector: "#help", ElementType: schemas.ElementLink, Activated: true, URLChanged: true, NewURL: "https://shop.example.com/help"},
		},
		Forms: []schemas.SubmissionResult{
			{FormSelector: "#search", Success: true, Attempts: 1, FieldsUsed: []int{1}},
		},
	}
}

// -- Test Cases --

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	mockPool, store := newMockStore(t, zap.NewNop())

	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS exploration_runs")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a visit with outcomes and forms without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		mockPool, store := newMockStore(t, zap.New(observedZapCore))
		page := samplePage()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertVisit)).
			WithArgs(page.VisitID, page.RunID, page.URL, page.Depth, anyTime, anyTime, page.Elements, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"click_outcomes"}, outcomeColumns).
			WillReturnResult(2)
		mockPool.ExpectCopyFrom(pgx.Identifier{"form_submissions"}, formColumns).
			WillReturnResult(1)

		// Expect Commit AND the subsequent Rollback (which returns ErrTxClosed)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.Record(ctx, page))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip bulk copies for a visit without outcomes", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		page := samplePage()
		page.Outcomes = nil
		page.Forms = nil
		page.Error = "navigation failed"

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertVisit)).
			WithArgs(page.VisitID, page.RunID, page.URL, page.Depth, anyTime, anyTime, page.Elements, "navigation failed").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, store.Record(ctx, page))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := store.Record(ctx, samplePage())
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copying outcomes fails", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		page := samplePage()
		copyErr := errors.New("copy from failed")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertVisit)).
			WithArgs(page.VisitID, page.RunID, page.URL, page.Depth, anyTime, anyTime, page.Elements, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"click_outcomes"}, outcomeColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := store.Record(ctx, page)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback on a short copy", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		page := samplePage()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertVisit)).
			WithArgs(page.VisitID, page.RunID, page.URL, page.Depth, anyTime, anyTime, page.Elements, "").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"click_outcomes"}, outcomeColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err := store.Record(ctx, page)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied outcomes count: expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if the visit insert fails", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		page := samplePage()
		execErr := errors.New("relation page_visits does not exist")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertVisit)).
			WithArgs(page.VisitID, page.RunID, page.URL, page.Depth, anyTime, anyTime, page.Elements, "").
			WillReturnError(execErr)
		mockPool.ExpectRollback()

		err := store.Record(ctx, page)
		require.Error(t, err)
		assert.ErrorIs(t, err, execErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecordPopup(t *testing.T) {
	mockPool, store := newMockStore(t, zap.NewNop())
	report := schemas.PopupReport{
		RunID:   "run-7",
		VisitID: "visit-7",
		PageURL: "https://shop.example.com/",
		Descriptor: schemas.PopupDescriptor{
			Selector:    ".cookie-banner",
			Kind:        schemas.PopupInfo,
			TextExcerpt: "We use cookies",
		},
		FinalState: "operational",
		Tier:       0,
	}

	mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertPopup)).
		WithArgs("run-7", "visit-7", report.PageURL, ".cookie-banner", "info", "We use cookies",
			false, "operational", 0, false, "", anyTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordPopup(context.Background(), report))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestFlush(t *testing.T) {
	t.Run("should upsert the run summary", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		summary := schemas.RunSummary{
			RunID:          "run-9",
			StartURL:       "https://shop.example.com/",
			StartedAt:      time.Date(2026, 5, 2, 5, 0, 0, 0, loc),
			PagesVisited:   3,
			ElementsProbed: 12,
			Activated:      11,
			URLChanges:     2,
			Interrupted:    true,
		}

		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs("run-9", summary.StartURL, anyTime, anyTime,
				3, 12, 11, 0, 2, 0, 0, 0, 0, true).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, store.Flush(context.Background(), summary))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap database errors", func(t *testing.T) {
		mockPool, store := newMockStore(t, zap.NewNop())
		dbErr := errors.New("connection reset")

		args := make([]interface{}, 14)
		for i := range args {
			args[i] = pgxmock.AnyArg()
		}
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(args...).
			WillReturnError(dbErr)

		err := store.Flush(context.Background(), schemas.RunSummary{RunID: "run-x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to upsert run summary")
		assert.NoError(t, mockPool.ExpectationsWereMet(), "the failing call must be the expected one")
	})
}

func TestGetOutcomesByRunID(t *testing.T) {
	mockPool, store := newMockStore(t, zap.NewNop())
	runID := uuid.NewString()

	columns := []string{"selector", "used_selector", "origin_url", "element_type", "activated", "route_changed", "url_changed",
		"popup_detected", "new_url", "virtual_route", "cross_host", "request_count", "dom_insertions", "duration_ms", "error"}
	rows := pgxmock.NewRows(columns).
		AddRow("#tab", "#tab", "https://app.example.com/", "button", true, true, false, false, "", "#/tab", false, 2, 5, int64(750), "").
		AddRow("#out", "", "https://app.example.com/", "link", true, false, true, false, "https://other.example.org/", "", true, 1, 0, int64(40), "")

	mockPool.ExpectQuery(`(?s)SELECT .+FROM click_outcomes o\s+JOIN page_visits v ON v.id = o.visit_id\s+WHERE v.run_id = \$1`).
		WithArgs(runID).
		WillReturnRows(rows)

	outcomes, err := store.GetOutcomesByRunID(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, schemas.ElementButton, outcomes[0].ElementType)
	assert.True(t, outcomes[0].RouteChanged)
	assert.Equal(t, "#/tab", outcomes[0].VirtualRoute)
	assert.Equal(t, 750*time.Millisecond, outcomes[0].Duration)
	assert.True(t, outcomes[1].CrossHost)
	assert.Equal(t, "https://other.example.org/", outcomes[1].NewURL)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
