package pipeline

import (
	"context"
	"errors"
	"sync"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

type fakeAdapter struct {
	kind    scans.Kind
	result  scans.Result
	panics  bool
	onRun   func()
	calls   int
	targets []scans.Target
}

func (a *fakeAdapter) Kind() scans.Kind { return a.kind }

func (a *fakeAdapter) Run(_ context.Context, target scans.Target) scans.Result {
	a.calls++
	a.targets = append(a.targets, target)
	if a.onRun != nil {
		a.onRun()
	}
	if a.panics {
		panic("scanner exploded")
	}
	return a.result
}

func passing(kind scans.Kind) *fakeAdapter {
	return &fakeAdapter{kind: kind, result: scans.Result{Outcome: scans.OutcomePassed}}
}

func findings(kind scans.Kind) *fakeAdapter {
	return &fakeAdapter{kind: kind, result: scans.Result{
		Outcome: scans.OutcomeFailedFindings,
		Kind:    scans.ErrKindFindingsAboveThreshold,
		Counts:  scans.SeverityCounts{High: 2, Total: 2},
	}}
}

func toolError(kind scans.Kind) *fakeAdapter {
	return &fakeAdapter{kind: kind, result: scans.Result{
		Outcome: scans.OutcomeToolError,
		Kind:    scans.ErrKindToolError,
		Message: "crashed",
	}}
}

type fakeEnv struct {
	mu          sync.Mutex
	startHandle domain.Handle
	stopHandle  domain.Handle
	imageRef    string
	imageErr    error
	starts      int
	stops       int
	images      int
	stopCtxErr  error
}

func readyEnv() *fakeEnv {
	return &fakeEnv{
		startHandle: domain.Handle{State: domain.EnvReady, Endpoint: "http://localhost:8080"},
		stopHandle:  domain.Handle{State: domain.EnvStopped},
		imageRef:    "app:run",
	}
}

func (e *fakeEnv) EnsureImage(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images++
	return e.imageRef, e.imageErr
}

func (e *fakeEnv) Start(context.Context) domain.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	return e.startHandle
}

func (e *fakeEnv) Stop(ctx context.Context) domain.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.stopCtxErr = ctx.Err()
	return e.stopHandle
}

type fakeSource struct {
	dir      string
	err      error
	prepares int
}

func (s *fakeSource) Prepare(context.Context) (string, error) {
	s.prepares++
	return s.dir, s.err
}

type memStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *memStore) Put(_ context.Context, _, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "mem://" + key, nil
}

var errBoom = errors.New("boom")
