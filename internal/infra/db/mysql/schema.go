package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS security_runs (
  id             VARCHAR(64)  NOT NULL PRIMARY KEY,
  triggered_at   DATETIME(3)  NOT NULL,
  finished_at    DATETIME(3)  NULL,
  triggered_by   VARCHAR(128) NOT NULL DEFAULT '-',
  status         VARCHAR(16)  NOT NULL,
  verdict        VARCHAR(16)  NOT NULL DEFAULT '',
  critical       INT NOT NULL DEFAULT 0,
  high           INT NOT NULL DEFAULT 0,
  medium         INT NOT NULL DEFAULT 0,
  low            INT NOT NULL DEFAULT 0,
  findings_total INT NOT NULL DEFAULT 0,
  stages_json    JSON NOT NULL,
  warnings_json  JSON NOT NULL,
  artifacts_json JSON NOT NULL,
  summary        TEXT NOT NULL,
  triage         TEXT NOT NULL,
  duration_ms    BIGINT NOT NULL DEFAULT 0,
  source         VARCHAR(64)  NOT NULL DEFAULT '',
  commit_sha     VARCHAR(64)  NOT NULL DEFAULT '',
  branch         VARCHAR(255) NOT NULL DEFAULT '',
  KEY idx_runs_triggered_at (triggered_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS security_stage_errors (
  id           BIGINT AUTO_INCREMENT PRIMARY KEY,
  run_id       VARCHAR(64)  NOT NULL,
  stage        VARCHAR(64)  NOT NULL,
  kind         VARCHAR(64)  NOT NULL,
  message      TEXT NOT NULL,
  details_json JSON NOT NULL,
  created_at   DATETIME(3)  NOT NULL,
  KEY idx_stage_errors_run (run_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
