package mysql

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// Integration tests; set SCANPIPE_TEST_MYSQL_DSN to run them against a scratch database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SCANPIPE_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("SCANPIPE_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	conn, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestRunRepositoryRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRunRepository(conn)
	ctx := context.Background()

	id := runs.RunID(uuid.New().String())
	started := time.Now().UTC().Truncate(time.Millisecond)
	run := &runs.Run{ID: id, TriggeredAt: started, Status: runs.StatusRunning, Branch: "main"}
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save initial: %v", err)
	}

	run.Status = runs.StatusFailed
	run.Verdict = pipeline.VerdictFailed
	run.FinishedAt = started.Add(90 * time.Second)
	run.DurationMS = 90000
	run.Summary = "run: FAILED"
	run.Stages = []runs.StageSummary{{
		Ordinal: 1, Name: "sast", Kind: scans.KindSAST, Policy: pipeline.PolicyFatal,
		Outcome: scans.OutcomeFailedFindings, Counts: scans.SeverityCounts{Critical: 1, Total: 1},
	}}
	run.Warnings = []pipeline.Warning{{Kind: scans.ErrKindEnvironmentStopWarning, Message: "down failed"}}
	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save final: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != runs.StatusFailed || got.Verdict != pipeline.VerdictFailed || got.Branch != "main" {
		t.Errorf("unexpected run %+v", got)
	}
	if len(got.Stages) != 1 || got.Stages[0].Counts.Critical != 1 || len(got.Warnings) != 1 {
		t.Errorf("nested columns lost: %+v", got)
	}
	if got.TriggeredBy != "" {
		t.Errorf("triggered_by = %q", got.TriggeredBy)
	}

	latest, err := repo.Latest(ctx, 5)
	if err != nil || len(latest) == 0 {
		t.Fatalf("latest: %v", err)
	}

	if err := repo.UpdateStatus(ctx, id, runs.StatusError); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if _, err := repo.Get(ctx, "does-not-exist"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing run err = %v", err)
	}
}

func TestStageErrorRepository(t *testing.T) {
	conn := openTestDB(t)
	repo := NewStageErrorRepository(conn)
	ctx := context.Background()
	runID := uuid.New().String()

	for _, e := range []*scanerrors.StageError{
		{RunID: runID, Stage: "sca", Kind: "TOOL_ERROR", Message: "npm ci failed", DetailsJSON: "not json"},
		{RunID: runID, Kind: "ENVIRONMENT_STOP_WARNING", Message: "down failed"},
	} {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
		if e.ID == 0 {
			t.Error("id not assigned")
		}
	}
	list, err := repo.ListByRun(ctx, runID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	for _, e := range list {
		if e.Kind == "ENVIRONMENT_STOP_WARNING" && e.Stage != "" {
			t.Errorf("run-level warning stage = %q", e.Stage)
		}
	}
}
