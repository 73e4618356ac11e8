package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/application"
	domain "github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

const defaultStopTimeout = 2 * time.Minute

// Outcome of one run.
type Outcome struct {
	Report  *domain.RunReport
	Verdict domain.Verdict
	Summary string
}

// Sequencer runs the stages of one pipeline run in declared order, gating on
// each stage's policy, and always releases the environment and collects
// artifacts before finalizing the report.
type Sequencer struct {
	Stages    []domain.Stage
	Source    domain.SourceProvider
	Env       domain.Environment
	Collector *Collector
	Artifacts []domain.ArtifactSpec

	// Endpoint is the DAST target for stages that do not require the environment.
	Endpoint string
	// LogDir holds invocation transcripts; they are collected with the artifacts.
	LogDir      string
	StopTimeout time.Duration
	Clock       application.Clock
}

// Run executes the pipeline. Stage failures never surface as errors; the
// error return is reserved for report bookkeeping defects.
func (s *Sequencer) Run(ctx context.Context, runID string) (*Outcome, error) {
	clock := s.Clock
	if clock == nil {
		clock = application.SystemClock{}
	}
	report := domain.NewRunReport(runID, clock.Now())
	log.Printf("run start id=%s stages=%d", runID, len(s.Stages))

	if err := s.runStages(ctx, report); err != nil {
		return nil, err
	}

	// outputs are kept even when the run was canceled
	if s.Collector != nil {
		collected := s.Collector.Collect(context.WithoutCancel(ctx), runID, s.artifactSpecs(report))
		if err := report.AttachArtifacts(collected); err != nil {
			return nil, err
		}
	}

	verdict, summary, err := report.Finalize(clock.Now())
	if err != nil {
		return nil, err
	}
	log.Printf("run finish id=%s verdict=%s state=%s canceled=%t duration=%s",
		runID, verdict, report.State(), report.Canceled(), report.FinishedAt().Sub(report.StartedAt).Round(time.Millisecond))
	return &Outcome{Report: report, Verdict: verdict, Summary: summary}, nil
}

func (s *Sequencer) runStages(ctx context.Context, report *domain.RunReport) (err error) {
	l := &lease{env: s.Env}
	defer func() {
		if rerr := s.release(ctx, l, report); err == nil {
			err = rerr
		}
	}()

	var targets targetCache
	for i, st := range s.Stages {
		if ctx.Err() != nil {
			log.Printf("run canceled before stage=%s: %v", st.Name, ctx.Err())
			if err := report.Abort(true); err != nil {
				return err
			}
			return skipRest(report, s.Stages[i:], "run canceled")
		}

		if err := report.Begin(st); err != nil {
			return err
		}
		log.Printf("stage start name=%s ordinal=%d kind=%s policy=%s", st.Name, st.Ordinal, st.Kind(), st.Policy)
		res := s.execute(ctx, st, l, &targets)
		log.Printf("stage finish name=%s outcome=%s kind=%s total=%d duration=%s",
			st.Name, res.Outcome, res.Kind, res.Counts.Total, res.Duration.Round(time.Millisecond))
		if err := report.Record(st, res); err != nil {
			return err
		}

		if !res.Passed() && st.Policy == domain.PolicyFatal {
			if err := report.Abort(ctx.Err() != nil); err != nil {
				return err
			}
			return skipRest(report, s.Stages[i+1:], fmt.Sprintf("aborted after fatal stage %s", st.Name))
		}
	}
	if ctx.Err() != nil {
		return report.Abort(true)
	}
	return report.Complete()
}

func skipRest(report *domain.RunReport, rest []domain.Stage, reason string) error {
	for _, st := range rest {
		if err := report.Skip(st, reason); err != nil {
			return err
		}
	}
	return nil
}

// execute produces the stage result. Nothing here returns an error; failures
// that happen before the adapter runs are TOOL_ERROR results.
func (s *Sequencer) execute(ctx context.Context, st domain.Stage, l *lease, targets *targetCache) scans.Result {
	started := time.Now()
	if st.RequiresEnvironment {
		h := l.acquire(ctx)
		if h.State != domain.EnvReady {
			kind := h.Kind
			if kind == "" {
				kind = scans.ErrKindEnvironmentStartFailure
			}
			msg := fmt.Sprintf("environment %s", h.State)
			if h.Err != nil {
				msg = fmt.Sprintf("%s: %v", msg, h.Err)
			}
			return scans.ToolFailure(kind, started, "", "%s", msg)
		}
	}

	target, err := s.resolve(ctx, st, l, targets)
	if err != nil {
		return scans.ToolFailure(scans.KindOf(err), started, "", "resolve target: %v", err)
	}
	return runAdapter(ctx, st, target)
}

func runAdapter(ctx context.Context, st domain.Stage, target scans.Target) (res scans.Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("stage panic name=%s: %v\n%s", st.Name, r, debug.Stack())
			res = scans.ToolFailure(scans.ErrKindToolError, started, "", "adapter panic: %v", r)
		}
	}()
	return st.Adapter.Run(ctx, target)
}

// targetCache keeps the source tree and image reference for the run.
type targetCache struct {
	source    string
	sourceErr error
	sourceSet bool
}

func (s *Sequencer) resolve(ctx context.Context, st domain.Stage, l *lease, c *targetCache) (scans.Target, error) {
	switch st.Kind() {
	case scans.KindSAST, scans.KindSCA:
		if !c.sourceSet {
			if s.Source == nil {
				c.sourceErr = errors.New("no source configured")
			} else {
				c.source, c.sourceErr = s.Source.Prepare(ctx)
			}
			c.sourceSet = true
		}
		if c.sourceErr != nil {
			return scans.Target{}, c.sourceErr
		}
		return scans.SourceTree(c.source), nil

	case scans.KindContainer:
		if s.Env == nil {
			return scans.Target{}, errors.New("no image builder configured")
		}
		ref, err := s.Env.EnsureImage(ctx)
		if err != nil {
			return scans.Target{}, err
		}
		return scans.ImageReference(ref), nil

	case scans.KindDAST:
		endpoint := s.Endpoint
		if st.RequiresEnvironment {
			endpoint = l.handle.Endpoint
		}
		if endpoint == "" {
			return scans.Target{}, errors.New("no endpoint for dast stage")
		}
		return scans.Endpoint(endpoint), nil
	}
	return scans.Target{}, fmt.Errorf("unsupported stage kind %q", st.Kind())
}

// lease scopes the environment to the run: Start at most once, Stop exactly
// once if Start was attempted.
type lease struct {
	env       domain.Environment
	attempted bool
	handle    domain.Handle
}

func (l *lease) acquire(ctx context.Context) domain.Handle {
	if l.attempted {
		return l.handle
	}
	if l.env == nil {
		l.handle = domain.Handle{
			State: domain.EnvStartFailed,
			Kind:  scans.ErrKindEnvironmentStartFailure,
			Err:   errors.New("no environment configured"),
		}
		return l.handle
	}
	l.attempted = true
	l.handle = l.env.Start(ctx)
	return l.handle
}

func (s *Sequencer) release(ctx context.Context, l *lease, report *domain.RunReport) error {
	if !l.attempted {
		return nil
	}
	timeout := s.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	h := l.env.Stop(stopCtx)
	l.handle = h
	if h.State != domain.EnvStopFailed {
		return nil
	}
	if len(h.Warnings) == 0 {
		return report.Warn(scans.ErrKindEnvironmentStopWarning, "environment teardown failed")
	}
	for _, w := range h.Warnings {
		if err := report.Warn(scans.ErrKindEnvironmentStopWarning, w); err != nil {
			return err
		}
	}
	return nil
}

// artifactSpecs lists configured artifacts, each stage's raw output and the
// invocation transcripts, without duplicate paths.
func (s *Sequencer) artifactSpecs(report *domain.RunReport) []domain.ArtifactSpec {
	seen := map[string]bool{}
	var specs []domain.ArtifactSpec
	add := func(sp domain.ArtifactSpec) {
		if sp.Path == "" || seen[sp.Path] {
			return
		}
		seen[sp.Path] = true
		specs = append(specs, sp)
	}

	for _, sp := range s.Artifacts {
		add(sp)
	}
	for _, rec := range report.Records() {
		if rec.Skipped || rec.Result.RawOutput == "" {
			continue
		}
		add(domain.ArtifactSpec{
			Name: fmt.Sprintf("%s/%s", rec.Stage.Name, filepath.Base(rec.Result.RawOutput)),
			Path: rec.Result.RawOutput,
		})
	}
	if s.LogDir != "" {
		logs, _ := filepath.Glob(filepath.Join(s.LogDir, "*.log"))
		sort.Strings(logs)
		for _, p := range logs {
			add(domain.ArtifactSpec{Name: "logs/" + filepath.Base(p), Path: p})
		}
	}
	return specs
}
