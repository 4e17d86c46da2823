package store

// schemaDDL is applied by EnsureSchema. Every statement is idempotent.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS exploration_runs (
    id              TEXT PRIMARY KEY,
    start_url       TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ,
    pages_visited   INTEGER NOT NULL DEFAULT 0,
    elements_probed INTEGER NOT NULL DEFAULT 0,
    activated       INTEGER NOT NULL DEFAULT 0,
    route_changes   INTEGER NOT NULL DEFAULT 0,
    url_changes     INTEGER NOT NULL DEFAULT 0,
    popups_detected INTEGER NOT NULL DEFAULT 0,
    forms_submitted INTEGER NOT NULL DEFAULT 0,
    forms_succeeded INTEGER NOT NULL DEFAULT 0,
    degraded_popups INTEGER NOT NULL DEFAULT 0,
    interrupted     BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS page_visits (
    id          TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    url         TEXT NOT NULL,
    depth       INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    elements    INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS page_visits_run_id_idx ON page_visits (run_id);

CREATE TABLE IF NOT EXISTS click_outcomes (
    visit_id       TEXT NOT NULL REFERENCES page_visits (id) ON DELETE CASCADE,
    seq            INTEGER NOT NULL,
    selector       TEXT NOT NULL,
    used_selector  TEXT NOT NULL,
    origin_url     TEXT NOT NULL,
    element_type   TEXT NOT NULL,
    activated      BOOLEAN NOT NULL,
    route_changed  BOOLEAN NOT NULL,
    url_changed    BOOLEAN NOT NULL,
    popup_detected BOOLEAN NOT NULL,
    new_url        TEXT NOT NULL,
    virtual_route  TEXT NOT NULL,
    cross_host     BOOLEAN NOT NULL,
    request_count  INTEGER NOT NULL,
    dom_insertions INTEGER NOT NULL,
    duration_ms    BIGINT NOT NULL,
    error          TEXT NOT NULL,
    PRIMARY KEY (visit_id, seq)
);

CREATE TABLE IF NOT EXISTS form_submissions (
    visit_id           TEXT NOT NULL REFERENCES page_visits (id) ON DELETE CASCADE,
    seq                INTEGER NOT NULL,
    form_selector      TEXT NOT NULL,
    success            BOOLEAN NOT NULL,
    new_url            TEXT NOT NULL,
    error_signals      TEXT[] NOT NULL,
    validation_details TEXT NOT NULL,
    attempts           INTEGER NOT NULL,
    fields_used        INTEGER[] NOT NULL,
    recovered          BOOLEAN NOT NULL,
    PRIMARY KEY (visit_id, seq)
);

CREATE TABLE IF NOT EXISTS popup_reports (
    id            BIGSERIAL PRIMARY KEY,
    run_id        TEXT NOT NULL,
    visit_id      TEXT NOT NULL,
    page_url      TEXT NOT NULL,
    selector      TEXT NOT NULL,
    kind          TEXT NOT NULL,
    text_excerpt  TEXT NOT NULL,
    forms_present BOOLEAN NOT NULL,
    final_state   TEXT NOT NULL,
    tier          INTEGER NOT NULL,
    degraded      BOOLEAN NOT NULL,
    error         TEXT NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL
);
`
