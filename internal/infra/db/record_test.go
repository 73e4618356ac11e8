package db

import (
	"testing"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

func TestEncodeDecodeRun(t *testing.T) {
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &runs.Run{
		ID:         "r1",
		FinishedAt: finished,
		Stages: []runs.StageSummary{
			{Ordinal: 1, Name: "sast", Kind: scans.KindSAST, Policy: pipeline.PolicyFatal, Outcome: scans.OutcomeFailedFindings,
				Counts: scans.SeverityCounts{High: 2, Total: 2}},
			{Ordinal: 2, Name: "dast", Kind: scans.KindDAST, Policy: pipeline.PolicyFatal, Skipped: true, SkipReason: "aborted"},
		},
		Warnings:  []pipeline.Warning{{Kind: scans.ErrKindEnvironmentStopWarning, Message: "down failed"}},
		Artifacts: []pipeline.CollectedArtifact{{Name: "sast", Path: "/tmp/sast.sarif", Status: pipeline.ArtifactCollected}},
	}
	cols, err := EncodeRun(in)
	if err != nil {
		t.Fatal(err)
	}
	if !cols.FinishedAt.Valid {
		t.Fatal("finished_at should be set")
	}

	out := &runs.Run{ID: "r1"}
	if err := DecodeRun(out, cols); err != nil {
		t.Fatal(err)
	}
	if !out.FinishedAt.Equal(finished) {
		t.Errorf("finished = %v", out.FinishedAt)
	}
	if len(out.Stages) != 2 || out.Stages[0].Counts.High != 2 || !out.Stages[1].Skipped {
		t.Errorf("stages = %+v", out.Stages)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Kind != scans.ErrKindEnvironmentStopWarning {
		t.Errorf("warnings = %+v", out.Warnings)
	}
	if len(out.Artifacts) != 1 || out.Artifacts[0].Status != pipeline.ArtifactCollected {
		t.Errorf("artifacts = %+v", out.Artifacts)
	}
}

func TestEncodeRunEmpty(t *testing.T) {
	cols, err := EncodeRun(&runs.Run{ID: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if cols.FinishedAt.Valid {
		t.Error("zero finished_at should be NULL")
	}
	if cols.StagesJSON != "[]" || cols.WarningsJSON != "[]" || cols.ArtifactsJSON != "[]" {
		t.Errorf("unexpected empty columns %+v", cols)
	}
}

func TestDetailsJSON(t *testing.T) {
	if got := DetailsJSON(""); got != "{}" {
		t.Errorf("empty -> %s", got)
	}
	if got := DetailsJSON(`{"a":1}`); got != `{"a":1}` {
		t.Errorf("valid -> %s", got)
	}
	if got := DetailsJSON("not json"); got != `{"raw":"not json"}` {
		t.Errorf("invalid -> %s", got)
	}
}

func TestStringOrDash(t *testing.T) {
	if StringOrDash("  ") != "-" || StringOrDash("x") != "x" {
		t.Error("StringOrDash")
	}
	if DashToEmpty("-") != "" || DashToEmpty("x") != "x" {
		t.Error("DashToEmpty")
	}
}
