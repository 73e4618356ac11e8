package ai

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded means the provider rate limited or ran out of quota.
	ErrQuotaExceeded = errors.New("triage quota exceeded")
	// ErrEmptyNote means the provider answered without any usable text.
	ErrEmptyNote = errors.New("triage returned no note")
)

// Client produces a short remediation note for a failed run summary.
type Client interface {
	Triage(ctx context.Context, summary string) (string, error)
}
