package scanners

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// Base holds what every adapter shares: how to run a tool, where its report
// goes, and the gating threshold.
type Base struct {
	Invoker   domain.Invoker
	OutDir    string
	Threshold domain.Severity
	Timeout   time.Duration
}

func (b Base) threshold() domain.Severity {
	if b.Threshold == domain.SeverityUnknown {
		return domain.SeverityHigh
	}
	return b.Threshold
}

func (b Base) prepareOutDir() error {
	if b.OutDir == "" {
		return fmt.Errorf("output directory not configured")
	}
	return os.MkdirAll(b.OutDir, 0o755)
}

// run invokes the tool and converts conditions that never reach exit-code
// interpretation (missing tool, start error, timeout, cancellation) into a
// finished Result. ok is false when the caller must stop.
func (b Base) run(ctx context.Context, started time.Time, inv domain.Invocation) (exe domain.Execution, res domain.Result, ok bool) {
	if inv.Timeout == 0 {
		inv.Timeout = b.Timeout
	}
	exe, err := b.Invoker.Invoke(ctx, inv)
	switch {
	case err != nil:
		log.Printf("scanner invoke error name=%s: %v", inv.Name, err)
		return exe, domain.ToolFailure(domain.KindOf(err), started, exe.LogPath, "%s: %v", inv.Name, err), false
	case exe.TimedOut:
		return exe, domain.ToolFailure(domain.ErrKindTimeout, started, exe.LogPath, "%s timed out after %s", inv.Name, inv.Timeout), false
	case ctx.Err() != nil:
		return exe, domain.ToolFailure(domain.ErrKindCanceled, started, exe.LogPath, "%s canceled: %v", inv.Name, ctx.Err()), false
	}
	return exe, domain.Result{}, true
}

func wrongTarget(started time.Time, err error) domain.Result {
	return domain.ToolFailure(domain.ErrKindWrongTarget, started, "", "%v", err)
}

// tail trims tool output for result messages.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
