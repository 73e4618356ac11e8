package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// waitDelay bounds how long Wait keeps draining pipes after the process
// group was killed (grandchildren may still hold them open).
const waitDelay = 2 * time.Second

// Invoker runs external commands and keeps a transcript of each invocation.
type Invoker struct {
	// LogDir receives one transcript file per invocation; empty disables transcripts.
	LogDir string

	seq atomic.Int64
}

func NewInvoker(logDir string) *Invoker {
	return &Invoker{LogDir: logDir}
}

// Invoke runs inv.Command to completion. A nonzero exit or a timeout is
// reported in the Execution; the error return is reserved for commands that
// could not be started at all (wrapping domain.ErrToolMissing when the
// executable is absent).
func (iv *Invoker) Invoke(ctx context.Context, inv domain.Invocation) (domain.Execution, error) {
	if len(inv.Command) == 0 {
		return domain.Execution{}, fmt.Errorf("invoke %s: empty command", inv.Name)
	}
	bin, err := exec.LookPath(inv.Command[0])
	if err != nil {
		return domain.Execution{}, domain.ErrToolMissing.WithCause(err)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, inv.Command[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	exe := domain.Execution{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var ee *exec.ExitError
		switch {
		case inv.Timeout > 0 && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			exe.TimedOut = true
			exe.ExitCode = -1
		case errors.As(runErr, &ee):
			// -1 when terminated by a signal
			exe.ExitCode = ee.ExitCode()
		case cmd.ProcessState != nil:
			// exited but Wait reported a pipe/cancel error
			exe.ExitCode = cmd.ProcessState.ExitCode()
		default:
			iv.writeTranscript(inv, exe, runErr)
			return exe, fmt.Errorf("start %s: %w", inv.Command[0], runErr)
		}
	}

	exe.LogPath = iv.writeTranscript(inv, exe, nil)
	log.Printf("invoke name=%s exit=%d timed_out=%t duration=%s",
		inv.Name, exe.ExitCode, exe.TimedOut, exe.Duration.Round(time.Millisecond))
	return exe, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (iv *Invoker) writeTranscript(inv domain.Invocation, exe domain.Execution, startErr error) string {
	if iv.LogDir == "" {
		return ""
	}
	if err := os.MkdirAll(iv.LogDir, 0o755); err != nil {
		log.Printf("transcript mkdir error dir=%s: %v", iv.LogDir, err)
		return ""
	}
	name := unsafeName.ReplaceAllString(inv.Name, "_")
	if name == "" {
		name = "invocation"
	}
	path := filepath.Join(iv.LogDir, fmt.Sprintf("%03d-%s.log", iv.seq.Add(1), name))

	var b bytes.Buffer
	fmt.Fprintf(&b, "command: %s\n", strings.Join(inv.Command, " "))
	fmt.Fprintf(&b, "dir: %s\n", inv.Dir)
	if startErr != nil {
		fmt.Fprintf(&b, "start error: %v\n", startErr)
	} else {
		fmt.Fprintf(&b, "exit: %d\ntimed_out: %t\n", exe.ExitCode, exe.TimedOut)
	}
	fmt.Fprintf(&b, "duration: %s\n", exe.Duration)
	b.WriteString("--- stdout ---\n")
	b.Write(exe.Stdout)
	b.WriteString("\n--- stderr ---\n")
	b.Write(exe.Stderr)
	b.WriteString("\n")

	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		log.Printf("transcript write error path=%s: %v", path, err)
		return ""
	}
	return path
}
