package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// ErrReportFinalized signals a sequencer bookkeeping defect: the report was
// finalized or mutated after finalization.
var ErrReportFinalized = errors.New("run report already finalized")

// Verdict of a whole run.
type Verdict string

const (
	VerdictPassed Verdict = "PASSED"
	VerdictFailed Verdict = "FAILED"
)

// ExitCode is the process exit status for v.
func (v Verdict) ExitCode() int {
	if v == VerdictPassed {
		return 0
	}
	return 1
}

// State of the sequencer as recorded on the report.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateAdvancing State = "advancing"
	StateAborted   State = "aborted"
	StateCompleted State = "completed"
)

// StageRecord pairs a stage with its result. Skipped stages carry no result.
type StageRecord struct {
	Stage      Stage
	Result     scans.Result
	Skipped    bool
	SkipReason string
}

// Warning is a non-fatal condition surfaced in the summary.
type Warning struct {
	Kind    scans.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// RunReport is owned by the sequencer for the duration of one run.
type RunReport struct {
	RunID     string
	StartedAt time.Time

	state      State
	current    string
	records    []StageRecord
	warnings   []Warning
	artifacts  CollectedArtifacts
	canceled   bool
	finalized  bool
	finishedAt time.Time
	verdict    Verdict
	summary    string
}

// NewRunReport creates an empty report in state pending.
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{RunID: runID, StartedAt: startedAt, state: StatePending}
}

func (r *RunReport) State() State                  { return r.state }
func (r *RunReport) Current() string               { return r.current }
func (r *RunReport) Records() []StageRecord        { return append([]StageRecord(nil), r.records...) }
func (r *RunReport) Warnings() []Warning           { return append([]Warning(nil), r.warnings...) }
func (r *RunReport) Artifacts() CollectedArtifacts { return r.artifacts }
func (r *RunReport) Canceled() bool                { return r.canceled }
func (r *RunReport) Finalized() bool               { return r.finalized }
func (r *RunReport) FinishedAt() time.Time         { return r.finishedAt }

// Begin marks stage as running.
func (r *RunReport) Begin(stage Stage) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.state = StateRunning
	r.current = stage.Name
	return nil
}

// Record appends the result of an executed stage.
func (r *RunReport) Record(stage Stage, res scans.Result) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.records = append(r.records, StageRecord{Stage: stage, Result: res})
	r.state = StateAdvancing
	r.current = ""
	return nil
}

// Skip appends a stage that was not executed.
func (r *RunReport) Skip(stage Stage, reason string) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.records = append(r.records, StageRecord{Stage: stage, Skipped: true, SkipReason: reason})
	return nil
}

// Abort moves the report to aborted. canceled marks an external cancellation.
func (r *RunReport) Abort(canceled bool) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.state = StateAborted
	r.current = ""
	r.canceled = r.canceled || canceled
	return nil
}

// Complete marks that every stage ran.
func (r *RunReport) Complete() error {
	if r.finalized {
		return ErrReportFinalized
	}
	if r.state != StateAborted {
		r.state = StateCompleted
	}
	return nil
}

// Warn records a non-fatal condition.
func (r *RunReport) Warn(kind scans.ErrorKind, message string) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.warnings = append(r.warnings, Warning{Kind: kind, Message: message})
	return nil
}

// AttachArtifacts stores the collector output.
func (r *RunReport) AttachArtifacts(c CollectedArtifacts) error {
	if r.finalized {
		return ErrReportFinalized
	}
	r.artifacts = c
	return nil
}

// Finalize computes the verdict and summary. It succeeds once; later calls
// return the original verdict and summary together with ErrReportFinalized.
func (r *RunReport) Finalize(now time.Time) (Verdict, string, error) {
	if r.finalized {
		return r.verdict, r.summary, ErrReportFinalized
	}
	r.finalized = true
	r.finishedAt = now
	r.verdict = r.computeVerdict()
	r.summary = r.render()
	return r.verdict, r.summary, nil
}

// Verdict returns the final verdict; empty before Finalize.
func (r *RunReport) Verdict() Verdict { return r.verdict }

// Summary returns the final summary; empty before Finalize.
func (r *RunReport) Summary() string { return r.summary }

func (r *RunReport) computeVerdict() Verdict {
	if r.canceled {
		return VerdictFailed
	}
	for _, rec := range r.records {
		if rec.Skipped {
			continue
		}
		if !rec.Result.Passed() {
			return VerdictFailed
		}
	}
	return VerdictPassed
}

// Failing returns executed records whose result is not PASSED.
func (r *RunReport) Failing() []StageRecord {
	var out []StageRecord
	for _, rec := range r.records {
		if !rec.Skipped && !rec.Result.Passed() {
			out = append(out, rec)
		}
	}
	return out
}

func (r *RunReport) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s", r.RunID, r.verdict)
	if r.canceled {
		b.WriteString(" (canceled)")
	} else if r.state == StateAborted {
		b.WriteString(" (aborted)")
	}
	b.WriteString("\n")

	for _, rec := range r.records {
		fmt.Fprintf(&b, "  [%d] %-12s %-9s ", rec.Stage.Ordinal, rec.Stage.Name, rec.Stage.Policy)
		if rec.Skipped {
			fmt.Fprintf(&b, "SKIPPED (%s)\n", rec.SkipReason)
			continue
		}
		res := rec.Result
		b.WriteString(string(res.Outcome))
		if !res.Passed() {
			fmt.Fprintf(&b, " %s", res.Kind)
			c := res.Counts
			if c.Total > 0 {
				fmt.Fprintf(&b, " critical=%d high=%d medium=%d low=%d", c.Critical, c.High, c.Medium, c.Low)
			}
			if res.Message != "" {
				fmt.Fprintf(&b, ": %s", res.Message)
			}
		}
		fmt.Fprintf(&b, " (%s)\n", res.Duration.Round(time.Millisecond))
	}

	if len(r.warnings) > 0 {
		b.WriteString("warnings:\n")
		for _, w := range r.warnings {
			fmt.Fprintf(&b, "  - %s: %s\n", w.Kind, w.Message)
		}
	}
	if len(r.artifacts.Items) > 0 {
		b.WriteString("artifacts:\n")
		for _, a := range r.artifacts.Items {
			fmt.Fprintf(&b, "  - %s: %s", a.Name, a.Status)
			if a.Location != "" {
				fmt.Fprintf(&b, " %s", a.Location)
			}
			if a.Note != "" {
				fmt.Fprintf(&b, " (%s)", a.Note)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
