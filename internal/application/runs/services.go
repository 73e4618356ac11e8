package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/bryanwahyu/scanpipe/internal/application"
	appai "github.com/bryanwahyu/scanpipe/internal/application/ai"
	apppipeline "github.com/bryanwahyu/scanpipe/internal/application/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	domain "github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// Request describes what to scan for one run.
type Request struct {
	Source      string `json:"source"`
	CommitSHA   string `json:"commit_sha"`
	Branch      string `json:"branch"`
	TriggeredBy string `json:"-"`
}

// Pipeline builds and runs the stage sequence for one run.
type Pipeline interface {
	Run(ctx context.Context, runID string, req Request) (*apppipeline.Outcome, error)
}

// Metrics receives run lifecycle events.
type Metrics interface {
	RunStarted()
	RunFinished(status domain.Status)
}

// Service implements use-cases untuk Run. At most one run is in flight.
type Service struct {
	Pipeline Pipeline
	Repo     domain.Repository
	Errors   scanerrors.Repository // optional
	Triage   *appai.Service        // optional
	Metrics  Metrics               // optional
	Clock    application.Clock

	mu      sync.Mutex
	current *inflight
}

type inflight struct {
	id     domain.RunID
	cancel context.CancelFunc
	done   chan struct{}
}

//
// ==== USE CASES ====
//

// Execute runs a pipeline synchronously. The returned error is non-nil only
// when the run could not be carried out (busy, sequencer defect); a FAILED
// verdict is a normal result.
func (s *Service) Execute(ctx context.Context, req Request) (*domain.Run, error) {
	run, runCtx, f, err := s.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.finish(f)
	return run, s.execute(runCtx, run, req)
}

// Trigger starts a run in the background and returns its initial record.
func (s *Service) Trigger(req Request) (*domain.Run, error) {
	run, runCtx, f, err := s.begin(context.Background(), req)
	if err != nil {
		return nil, err
	}
	snapshot := *run

	// jalankan di background sampai selesai
	go func() {
		defer s.finish(f)
		if err := s.execute(runCtx, run, req); err != nil {
			log.Printf("background run error id=%s: %v", run.ID, err)
		}
	}()
	return &snapshot, nil
}

// Current returns the id of the run in flight, if any.
func (s *Service) Current() (domain.RunID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", false
	}
	return s.current.id, true
}

// Cancel cancels the run in flight. Teardown still happens.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.current.cancel()
	return true
}

// Shutdown cancels the run in flight and waits for it to finish tearing down.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	f := s.current
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	f.cancel()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("run %s still tearing down: %w", f.id, ctx.Err())
	}
}

// Latest ambil N run terakhir
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Run, error) {
	return s.Repo.Latest(ctx, limit)
}

// Get ambil 1 run by id
func (s *Service) Get(ctx context.Context, id domain.RunID) (*domain.Run, error) {
	return s.Repo.Get(ctx, id)
}

// StageErrors lists persisted tool errors and warnings of a run.
func (s *Service) StageErrors(ctx context.Context, id domain.RunID, limit int) ([]*scanerrors.StageError, error) {
	if s.Errors == nil {
		return []*scanerrors.StageError{}, nil
	}
	return s.Errors.ListByRun(ctx, string(id), limit)
}

func (s *Service) clock() application.Clock {
	if s.Clock == nil {
		return application.SystemClock{}
	}
	return s.Clock
}

func (s *Service) begin(parent context.Context, req Request) (*domain.Run, context.Context, *inflight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return nil, nil, nil, domain.ErrRunInProgress
	}

	id := domain.RunID(uuid.New().String())
	ctx, cancel := context.WithCancel(parent)
	s.current = &inflight{id: id, cancel: cancel, done: make(chan struct{})}

	run := &domain.Run{
		ID:          id,
		TriggeredAt: s.clock().Now(),
		TriggeredBy: req.TriggeredBy,
		Status:      domain.StatusRunning,
		Stages:      []domain.StageSummary{},
		Source:      req.Source,
		CommitSHA:   req.CommitSHA,
		Branch:      req.Branch,
	}
	return run, ctx, s.current, nil
}

func (s *Service) finish(f *inflight) {
	s.mu.Lock()
	if s.current == f {
		s.current = nil
	}
	s.mu.Unlock()
	f.cancel()
	close(f.done)
}

func (s *Service) execute(ctx context.Context, run *domain.Run, req Request) error {
	// persistence outlives cancellation of the run itself
	persistCtx := context.WithoutCancel(ctx)

	// simpan row awal supaya selalu ada ID yang bisa direferensikan
	s.save(persistCtx, run)
	if s.Metrics != nil {
		s.Metrics.RunStarted()
	}

	out, err := s.Pipeline.Run(ctx, string(run.ID), req)
	if err != nil {
		run.Status = domain.StatusError
		run.FinishedAt = s.clock().Now()
		run.DurationMS = run.FinishedAt.Sub(run.TriggeredAt).Milliseconds()
		run.Summary = err.Error()
		s.save(persistCtx, run)
		s.saveError(persistCtx, &scanerrors.StageError{
			RunID:     string(run.ID),
			Kind:      string(scans.ErrKindToolError),
			Message:   err.Error(),
			CreatedAt: run.FinishedAt,
		})
		if s.Metrics != nil {
			s.Metrics.RunFinished(run.Status)
		}
		return fmt.Errorf("run %s: %w", run.ID, err)
	}

	apply(run, out)
	if out.Verdict == pipeline.VerdictFailed {
		run.Triage = s.Triage.Triage(persistCtx, string(run.ID), out.Summary)
	}
	s.save(persistCtx, run)
	s.saveStageErrors(persistCtx, run)
	if s.Metrics != nil {
		s.Metrics.RunFinished(run.Status)
	}
	log.Printf("run recorded id=%s status=%s verdict=%s duration_ms=%d", run.ID, run.Status, run.Verdict, run.DurationMS)
	return nil
}

func apply(run *domain.Run, out *apppipeline.Outcome) {
	r := out.Report
	run.Verdict = out.Verdict
	run.Status = domain.StatusFromVerdict(out.Verdict)
	run.Stages = domain.Summarize(r)
	run.Warnings = r.Warnings()
	run.Artifacts = r.Artifacts().Items
	run.Summary = out.Summary
	run.FinishedAt = r.FinishedAt()
	run.DurationMS = r.FinishedAt().Sub(r.StartedAt).Milliseconds()
}

func (s *Service) save(ctx context.Context, run *domain.Run) {
	if s.Repo == nil {
		return
	}
	if err := s.Repo.Save(ctx, run); err != nil {
		log.Printf("run save error id=%s: %v", run.ID, err)
	}
}

func (s *Service) saveStageErrors(ctx context.Context, run *domain.Run) {
	for _, st := range run.Stages {
		if st.Skipped || st.Outcome != scans.OutcomeToolError {
			continue
		}
		details, _ := json.Marshal(st)
		s.saveError(ctx, &scanerrors.StageError{
			RunID:       string(run.ID),
			Stage:       st.Name,
			Kind:        string(st.ErrorKind),
			Message:     st.Message,
			DetailsJSON: string(details),
			CreatedAt:   run.FinishedAt,
		})
	}
	for _, w := range run.Warnings {
		s.saveError(ctx, &scanerrors.StageError{
			RunID:     string(run.ID),
			Kind:      string(w.Kind),
			Message:   w.Message,
			CreatedAt: run.FinishedAt,
		})
	}
}

func (s *Service) saveError(ctx context.Context, e *scanerrors.StageError) {
	if s.Errors == nil {
		return
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		log.Printf("stage error save error run=%s stage=%s: %v", e.RunID, e.Stage, err)
	}
}
