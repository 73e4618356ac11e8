package runs

import (
	"errors"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// ErrRunInProgress: orchestrator hanya boleh satu run sekaligus
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RunID tipe untuk Run
type RunID string

// Status enum
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error" // sequencer defect or setup failure
)

// StatusFromVerdict maps a final verdict to a run status.
func StatusFromVerdict(v pipeline.Verdict) Status {
	if v == pipeline.VerdictPassed {
		return StatusPassed
	}
	return StatusFailed
}

// StageSummary is the persisted view of one stage record.
type StageSummary struct {
	Ordinal    int                  `json:"ordinal"`
	Name       string               `json:"name"`
	Kind       scans.Kind           `json:"kind"`
	Policy     pipeline.Policy      `json:"policy"`
	Outcome    scans.Outcome        `json:"outcome,omitempty"`
	ErrorKind  scans.ErrorKind      `json:"error_kind,omitempty"`
	Counts     scans.SeverityCounts `json:"counts"`
	RawOutput  string               `json:"raw_output,omitempty"`
	Message    string               `json:"message,omitempty"`
	DurationMS int64                `json:"duration_ms"`
	Skipped    bool                 `json:"skipped,omitempty"`
	SkipReason string               `json:"skip_reason,omitempty"`
}

// Aggregate Root: Run
type Run struct {
	ID          RunID                        `json:"id"`
	TriggeredAt time.Time                    `json:"triggered_at"`
	FinishedAt  time.Time                    `json:"finished_at,omitempty"`
	TriggeredBy string                       `json:"triggered_by,omitempty"`
	Status      Status                       `json:"status"`
	Verdict     pipeline.Verdict             `json:"verdict,omitempty"`
	Stages      []StageSummary               `json:"stages"`
	Warnings    []pipeline.Warning           `json:"warnings,omitempty"`
	Artifacts   []pipeline.CollectedArtifact `json:"artifacts,omitempty"`
	Summary     string                       `json:"summary,omitempty"`
	Triage      string                       `json:"triage,omitempty"`
	DurationMS  int64                        `json:"duration_ms"`
	Source      string                       `json:"source,omitempty"`
	CommitSHA   string                       `json:"commit_sha,omitempty"`
	Branch      string                       `json:"branch,omitempty"`
}

// Summarize converts a finalized report into stage summaries.
func Summarize(report *pipeline.RunReport) []StageSummary {
	recs := report.Records()
	out := make([]StageSummary, 0, len(recs))
	for _, rec := range recs {
		s := StageSummary{
			Ordinal:    rec.Stage.Ordinal,
			Name:       rec.Stage.Name,
			Kind:       rec.Stage.Kind(),
			Policy:     rec.Stage.Policy,
			Skipped:    rec.Skipped,
			SkipReason: rec.SkipReason,
		}
		if !rec.Skipped {
			s.Outcome = rec.Result.Outcome
			s.ErrorKind = rec.Result.Kind
			s.Counts = rec.Result.Counts
			s.RawOutput = rec.Result.RawOutput
			s.Message = rec.Result.Message
			s.DurationMS = rec.Result.Duration.Milliseconds()
		}
		out = append(out, s)
	}
	return out
}

// Totals sums the finding counts of executed stages.
func Totals(stages []StageSummary) scans.SeverityCounts {
	var t scans.SeverityCounts
	for _, s := range stages {
		t.Critical += s.Counts.Critical
		t.High += s.Counts.High
		t.Medium += s.Counts.Medium
		t.Low += s.Counts.Low
		t.Info += s.Counts.Info
		t.Total += s.Counts.Total
	}
	return t
}
