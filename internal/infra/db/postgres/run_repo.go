package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/infra/db"
)

type RunRepository struct{ db *sql.DB }

func NewRunRepository(conn *sql.DB) *RunRepository { return &RunRepository{db: conn} }

const runColumns = `id, triggered_at, finished_at, triggered_by, status, verdict,
       stages_json::text, warnings_json::text, artifacts_json::text, summary, triage,
       duration_ms, source, commit_sha, branch`

// Save insert/update Run record
func (r *RunRepository) Save(ctx context.Context, run *runs.Run) error {
	const q = `
INSERT INTO security_runs
(id, triggered_at, finished_at, triggered_by, status, verdict,
 critical, high, medium, low, findings_total,
 stages_json, warnings_json, artifacts_json, summary, triage,
 duration_ms, source, commit_sha, branch)
VALUES ($1,$2,$3,$4,$5,$6,
        $7,$8,$9,$10,$11,
        $12::jsonb,$13::jsonb,$14::jsonb,$15,$16,
        $17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
 finished_at = EXCLUDED.finished_at,
 status = EXCLUDED.status,
 verdict = EXCLUDED.verdict,
 critical = EXCLUDED.critical,
 high = EXCLUDED.high,
 medium = EXCLUDED.medium,
 low = EXCLUDED.low,
 findings_total = EXCLUDED.findings_total,
 stages_json = EXCLUDED.stages_json,
 warnings_json = EXCLUDED.warnings_json,
 artifacts_json = EXCLUDED.artifacts_json,
 summary = EXCLUDED.summary,
 triage = EXCLUDED.triage,
 duration_ms = EXCLUDED.duration_ms;`

	cols, err := db.EncodeRun(run)
	if err != nil {
		return err
	}
	triggered := run.TriggeredAt
	if triggered.IsZero() {
		triggered = time.Now()
	}
	totals := runs.Totals(run.Stages)

	_, err = r.db.ExecContext(ctx, q,
		string(run.ID), triggered, cols.FinishedAt, db.StringOrDash(run.TriggeredBy),
		db.StringOrDash(string(run.Status)), string(run.Verdict),
		totals.Critical, totals.High, totals.Medium, totals.Low, totals.Total,
		cols.StagesJSON, cols.WarningsJSON, cols.ArtifactsJSON, run.Summary, run.Triage,
		run.DurationMS, run.Source, run.CommitSHA, run.Branch,
	)
	return err
}

// Get by ID
func (r *RunRepository) Get(ctx context.Context, id runs.RunID) (*runs.Run, error) {
	q := `SELECT ` + runColumns + ` FROM security_runs WHERE id = $1`
	return scanRun(r.db.QueryRowContext(ctx, q, string(id)))
}

// Latest returns the most recent runs
func (r *RunRepository) Latest(ctx context.Context, limit int) ([]*runs.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + runColumns + ` FROM security_runs ORDER BY triggered_at DESC, id DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*runs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunRepository) UpdateStatus(ctx context.Context, id runs.RunID, status runs.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE security_runs SET status = $1 WHERE id = $2`, string(status), string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*runs.Run, error) {
	var (
		run                 runs.Run
		id, status, verdict string
		cols                db.RunColumns
	)
	if err := row.Scan(&id, &run.TriggeredAt, &cols.FinishedAt, &run.TriggeredBy, &status, &verdict,
		&cols.StagesJSON, &cols.WarningsJSON, &cols.ArtifactsJSON, &run.Summary, &run.Triage,
		&run.DurationMS, &run.Source, &run.CommitSHA, &run.Branch); err != nil {
		return nil, err
	}
	run.ID = runs.RunID(id)
	run.Status = runs.Status(status)
	run.Verdict = pipeline.Verdict(verdict)
	run.TriggeredBy = db.DashToEmpty(run.TriggeredBy)
	if err := db.DecodeRun(&run, cols); err != nil {
		return nil, err
	}
	return &run, nil
}
