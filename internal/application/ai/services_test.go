package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanwahyu/scanpipe/internal/domain/ai"
)

type fakeClient struct {
	note string
	err  error
}

func (f fakeClient) Triage(context.Context, string) (string, error) { return f.note, f.err }

func TestTriage(t *testing.T) {
	if got := NewService(fakeClient{note: "fix semgrep findings"}).Triage(context.Background(), "r1", "s"); got != "fix semgrep findings" {
		t.Errorf("unexpected note %q", got)
	}
	if got := NewService(fakeClient{err: ai.ErrQuotaExceeded}).Triage(context.Background(), "r1", "s"); got != "" {
		t.Errorf("errors must yield an empty note, got %q", got)
	}
	if got := NewService(fakeClient{err: errors.New("boom")}).Triage(context.Background(), "r1", "s"); got != "" {
		t.Errorf("errors must yield an empty note, got %q", got)
	}
	var nilSvc *Service
	if got := nilSvc.Triage(context.Background(), "r1", "s"); got != "" {
		t.Errorf("nil service must be a no-op, got %q", got)
	}
}
