package pipeline

import (
	"context"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// EnvState is the lifecycle state of the ephemeral running instance.
type EnvState string

const (
	EnvNotStarted  EnvState = "not_started"
	EnvStarting    EnvState = "starting"
	EnvReady       EnvState = "ready"
	EnvStopping    EnvState = "stopping"
	EnvStopped     EnvState = "stopped"
	EnvStartFailed EnvState = "start_failed"
	EnvStopFailed  EnvState = "stop_failed"
)

// Handle is a snapshot of the environment. Only the controller produces it.
type Handle struct {
	State    EnvState        `json:"state"`
	Endpoint string          `json:"endpoint,omitempty"`
	ImageRef string          `json:"image_ref,omitempty"`
	Kind     scans.ErrorKind `json:"kind,omitempty"` // why start failed
	Err      error           `json:"-"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Environment port. Stop must be idempotent and never fail; teardown
// problems end up in Handle.Warnings with state StopFailed.
type Environment interface {
	EnsureImage(ctx context.Context) (string, error)
	Start(ctx context.Context) Handle
	Stop(ctx context.Context) Handle
}

// SourceProvider port: yields the path of the checked out source tree.
type SourceProvider interface {
	Prepare(ctx context.Context) (string, error)
}
