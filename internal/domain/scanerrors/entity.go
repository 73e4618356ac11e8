package scanerrors

import "time"

// StageError is a persisted TOOL_ERROR-class stage result or run warning.
type StageError struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Stage       string    `json:"stage,omitempty"` // empty for run-level warnings
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
