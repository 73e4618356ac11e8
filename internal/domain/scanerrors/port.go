package scanerrors

import "context"

// Repository defines persistence for stage errors
type Repository interface {
	Save(ctx context.Context, e *StageError) error
	ListByRun(ctx context.Context, runID string, limit int) ([]*StageError, error)
}
