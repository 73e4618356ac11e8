package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
	"github.com/bryanwahyu/scanpipe/internal/infra/db"
)

type StageErrorRepository struct {
	db *sql.DB
}

func NewStageErrorRepository(conn *sql.DB) *StageErrorRepository {
	return &StageErrorRepository{db: conn}
}

func (r *StageErrorRepository) Save(ctx context.Context, e *scanerrors.StageError) error {
	const q = `
INSERT INTO security_stage_errors
  (run_id, stage, kind, message, details_json, created_at)
VALUES (?,?,?,?,?,?)
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q,
		db.StringOrDash(e.RunID), db.StringOrDash(e.Stage), db.StringOrDash(e.Kind),
		db.StringOrDash(e.Message), db.DetailsJSON(e.DetailsJSON), created)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *StageErrorRepository) ListByRun(ctx context.Context, runID string, limit int) ([]*scanerrors.StageError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, run_id, stage, kind, message, details_json, created_at
FROM security_stage_errors
WHERE run_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
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
