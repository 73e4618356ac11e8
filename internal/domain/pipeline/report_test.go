package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

type stubAdapter struct{ kind scans.Kind }

func (s stubAdapter) Kind() scans.Kind { return s.kind }
func (s stubAdapter) Run(context.Context, scans.Target) scans.Result {
	return scans.Result{Outcome: scans.OutcomePassed}
}

func stage(name string, kind scans.Kind, ordinal int) Stage {
	return Stage{Name: name, Ordinal: ordinal, Adapter: stubAdapter{kind}, Policy: PolicyFatal}
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestFinalizeTwice(t *testing.T) {
	r := NewRunReport("r1", t0)
	st := stage("sast", scans.KindSAST, 1)
	_ = r.Begin(st)
	_ = r.Record(st, scans.Result{Outcome: scans.OutcomeFailedFindings, Kind: scans.ErrKindFindingsAboveThreshold})
	_ = r.Complete()

	v1, s1, err := r.Finalize(t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if v1 != VerdictFailed {
		t.Errorf("expected FAILED, got %s", v1)
	}

	v2, s2, err := r.Finalize(t0.Add(time.Hour))
	if !errors.Is(err, ErrReportFinalized) {
		t.Fatalf("expected ErrReportFinalized, got %v", err)
	}
	if v2 != v1 || s2 != s1 || !r.FinishedAt().Equal(t0.Add(time.Minute)) {
		t.Error("second Finalize changed the report")
	}
}

func TestMutationAfterFinalize(t *testing.T) {
	r := NewRunReport("r1", t0)
	if _, _, err := r.Finalize(t0); err != nil {
		t.Fatal(err)
	}
	st := stage("sast", scans.KindSAST, 1)
	for name, err := range map[string]error{
		"Begin":  r.Begin(st),
		"Record": r.Record(st, scans.Result{}),
		"Skip":   r.Skip(st, "x"),
		"Abort":  r.Abort(false),
		"Warn":   r.Warn(scans.ErrKindEnvironmentStopWarning, "x"),
		"Attach": r.AttachArtifacts(CollectedArtifacts{}),
	} {
		if !errors.Is(err, ErrReportFinalized) {
			t.Errorf("%s after Finalize: expected ErrReportFinalized, got %v", name, err)
		}
	}
}

func TestVerdict(t *testing.T) {
	passed := scans.Result{Outcome: scans.OutcomePassed}
	toolErr := scans.Result{Outcome: scans.OutcomeToolError, Kind: scans.ErrKindToolMissing}

	cases := []struct {
		name  string
		build func(r *RunReport)
		want  Verdict
	}{
		{"empty", func(r *RunReport) { _ = r.Complete() }, VerdictPassed},
		{"all passed", func(r *RunReport) {
			_ = r.Record(stage("a", scans.KindSAST, 1), passed)
			_ = r.Record(stage("b", scans.KindSCA, 2), passed)
		}, VerdictPassed},
		{"tool error", func(r *RunReport) {
			_ = r.Record(stage("a", scans.KindSAST, 1), toolErr)
		}, VerdictFailed},
		{"skipped only", func(r *RunReport) {
			_ = r.Record(stage("a", scans.KindSAST, 1), passed)
			_ = r.Skip(stage("b", scans.KindSCA, 2), "aborted")
		}, VerdictPassed},
		{"canceled", func(r *RunReport) {
			_ = r.Record(stage("a", scans.KindSAST, 1), passed)
			_ = r.Abort(true)
		}, VerdictFailed},
		{"warning only", func(r *RunReport) {
			_ = r.Record(stage("a", scans.KindDAST, 1), passed)
			_ = r.Warn(scans.ErrKindEnvironmentStopWarning, "down failed")
		}, VerdictPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRunReport("r", t0)
			tc.build(r)
			v, _, err := r.Finalize(t0)
			if err != nil {
				t.Fatal(err)
			}
			if v != tc.want {
				t.Errorf("expected %s, got %s", tc.want, v)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	r := NewRunReport("r", t0)
	if r.State() != StatePending {
		t.Fatalf("expected pending, got %s", r.State())
	}
	st := stage("sast", scans.KindSAST, 1)
	_ = r.Begin(st)
	if r.State() != StateRunning || r.Current() != "sast" {
		t.Errorf("expected running sast, got %s %q", r.State(), r.Current())
	}
	_ = r.Record(st, scans.Result{Outcome: scans.OutcomePassed})
	if r.State() != StateAdvancing || r.Current() != "" {
		t.Errorf("expected advancing, got %s", r.State())
	}
	_ = r.Abort(false)
	_ = r.Complete()
	if r.State() != StateAborted {
		t.Errorf("Complete must not override an abort, got %s", r.State())
	}
}

func TestSummary(t *testing.T) {
	r := NewRunReport("run-42", t0)
	_ = r.Record(stage("sast", scans.KindSAST, 1), scans.Result{
		Outcome: scans.OutcomeFailedFindings,
		Kind:    scans.ErrKindFindingsAboveThreshold,
		Counts:  scans.SeverityCounts{Critical: 1, High: 2, Total: 3},
		Message: "3 finding(s) at or above high",
	})
	_ = r.Skip(stage("sca", scans.KindSCA, 2), "aborted after fatal stage sast")
	_ = r.Abort(false)
	_ = r.Warn(scans.ErrKindEnvironmentStopWarning, "compose down exited 1")
	_ = r.AttachArtifacts(CollectedArtifacts{Items: []CollectedArtifact{
		{Name: "sast/sast.sarif", Status: ArtifactCollected, Location: "file:///a/sast.sarif"},
		{Name: "dast-report.html", Status: ArtifactAbsent},
	}})
	_, summary, _ := r.Finalize(t0)

	for _, want := range []string{
		"run run-42: FAILED (aborted)",
		"[1] sast",
		"FAILED_FINDINGS FINDINGS_ABOVE_THRESHOLD critical=1 high=2",
		"[2] sca",
		"SKIPPED (aborted after fatal stage sast)",
		"ENVIRONMENT_STOP_WARNING: compose down exited 1",
		"sast/sast.sarif: collected file:///a/sast.sarif",
		"dast-report.html: absent",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if f := r.Failing(); len(f) != 1 || f[0].Stage.Name != "sast" {
		t.Errorf("unexpected failing records %+v", f)
	}
}
