package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS security_runs (
  id             TEXT PRIMARY KEY,
  triggered_at   TIMESTAMPTZ NOT NULL,
  finished_at    TIMESTAMPTZ NULL,
  triggered_by   TEXT NOT NULL DEFAULT '-',
  status         TEXT NOT NULL,
  verdict        TEXT NOT NULL DEFAULT '',
  critical       INTEGER NOT NULL DEFAULT 0,
  high           INTEGER NOT NULL DEFAULT 0,
  medium         INTEGER NOT NULL DEFAULT 0,
  low            INTEGER NOT NULL DEFAULT 0,
  findings_total INTEGER NOT NULL DEFAULT 0,
  stages_json    JSONB NOT NULL DEFAULT '[]',
  warnings_json  JSONB NOT NULL DEFAULT '[]',
  artifacts_json JSONB NOT NULL DEFAULT '[]',
  summary        TEXT NOT NULL DEFAULT '',
  triage         TEXT NOT NULL DEFAULT '',
  duration_ms    BIGINT NOT NULL DEFAULT 0,
  source         TEXT NOT NULL DEFAULT '',
  commit_sha     TEXT NOT NULL DEFAULT '',
  branch         TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_triggered_at ON security_runs (triggered_at DESC)`,
	`
CREATE TABLE IF NOT EXISTS security_stage_errors (
  id           BIGSERIAL PRIMARY KEY,
  run_id       TEXT NOT NULL,
  stage        TEXT NOT NULL,
  kind         TEXT NOT NULL,
  message      TEXT NOT NULL,
  details_json JSONB NOT NULL DEFAULT '{}',
  created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_errors_run ON security_stage_errors (run_id, created_at DESC)`,
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
