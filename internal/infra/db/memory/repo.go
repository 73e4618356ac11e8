package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
)

// RunRepository keeps run records in process memory when no database is
// configured. Not-found lookups return sql.ErrNoRows like the SQL repositories.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[domain.RunID]domain.Run
}

func NewRunRepository() *RunRepository {
	return &RunRepository{runs: map[domain.RunID]domain.Run{}}
}

func (r *RunRepository) Save(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = clone(run)
	return nil
}

func (r *RunRepository) Get(_ context.Context, id domain.RunID) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := clone(&run)
	return &c, nil
}

func (r *RunRepository) Latest(_ context.Context, limit int) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Run, 0, len(r.runs))
	for _, run := range r.runs {
		c := clone(&run)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RunRepository) UpdateStatus(_ context.Context, id domain.RunID, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	run.Status = status
	r.runs[id] = run
	return nil
}

func clone(run *domain.Run) domain.Run {
	c := *run
	c.Stages = append([]domain.StageSummary(nil), run.Stages...)
	c.Warnings = append(c.Warnings[:0:0], run.Warnings...)
	c.Artifacts = append(c.Artifacts[:0:0], run.Artifacts...)
	return c
}

// StageErrorRepository is the in-memory counterpart of the stage error tables.
type StageErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	errs   []scanerrors.StageError
}

func NewStageErrorRepository() *StageErrorRepository { return &StageErrorRepository{} }

func (r *StageErrorRepository) Save(_ context.Context, e *scanerrors.StageError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.errs = append(r.errs, *e)
	return nil
}

func (r *StageErrorRepository) ListByRun(_ context.Context, runID string, limit int) ([]*scanerrors.StageError, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*scanerrors.StageError{}
	for i := len(r.errs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.errs[i].RunID == runID {
			e := r.errs[i]
			out = append(out, &e)
		}
	}
	return out, nil
}
