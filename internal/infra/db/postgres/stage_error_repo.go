package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
	"github.com/bryanwahyu/scanpipe/internal/infra/db"
)

type StageErrorRepository struct{ db *sql.DB }

func NewStageErrorRepository(conn *sql.DB) *StageErrorRepository {
	return &StageErrorRepository{db: conn}
}

func (r *StageErrorRepository) Save(ctx context.Context, e *scanerrors.StageError) error {
	const q = `
INSERT INTO security_stage_errors
  (run_id, stage, kind, message, details_json, created_at)
VALUES ($1,$2,$3,$4,$5::jsonb,$6)
RETURNING id`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return r.db.QueryRowContext(ctx, q,
		db.StringOrDash(e.RunID), db.StringOrDash(e.Stage), db.StringOrDash(e.Kind),
		db.StringOrDash(e.Message), db.DetailsJSON(e.DetailsJSON), created,
	).Scan(&e.ID)
}

func (r *StageErrorRepository) ListByRun(ctx context.Context, runID string, limit int) ([]*scanerrors.StageError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, run_id, stage, kind, message, details_json::text, created_at
FROM security_stage_errors
WHERE run_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*scanerrors.StageError
	for rows.Next() {
		var e scanerrors.StageError
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Kind, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Stage = db.DashToEmpty(e.Stage)
		out = append(out, &e)
	}
	return out, rows.Err()
}
