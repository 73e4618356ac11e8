package ai

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/ai"
)

const triageTimeout = 60 * time.Second

type Service struct {
	client ai.Client
}

func NewService(client ai.Client) *Service {
	return &Service{client: client}
}

// Triage asks the model for a remediation note. Failures are logged and
// yield an empty note; triage never affects a run's outcome.
func (s *Service) Triage(ctx context.Context, runID, summary string) string {
	if s == nil || s.client == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, triageTimeout)
	defer cancel()

	note, err := s.client.Triage(ctx, summary)
	if err != nil {
		if errors.Is(err, ai.ErrQuotaExceeded) {
			log.Printf("triage skipped run=%s: quota exceeded", runID)
		} else {
			log.Printf("triage error run=%s: %v", runID, err)
		}
		return ""
	}
	return note
}
