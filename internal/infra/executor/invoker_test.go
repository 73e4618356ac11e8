//go:build unix

package executor

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

func TestInvokeNonzeroExitIsNotAnError(t *testing.T) {
	iv := NewInvoker(t.TempDir())

	exe, err := iv.Invoke(context.Background(), domain.Invocation{
		Name:    "exit-three",
		Command: []string{"sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Invoke returned error for nonzero exit: %v", err)
	}
	if exe.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", exe.ExitCode)
	}
	if exe.TimedOut {
		t.Error("should not be flagged as timed out")
	}
	if strings.TrimSpace(string(exe.Stdout)) != "out" {
		t.Errorf("unexpected stdout %q", exe.Stdout)
	}
	if strings.TrimSpace(string(exe.Stderr)) != "err" {
		t.Errorf("unexpected stderr %q", exe.Stderr)
	}
}

func TestInvokeWritesTranscript(t *testing.T) {
	dir := t.TempDir()
	iv := NewInvoker(dir)

	exe, err := iv.Invoke(context.Background(), domain.Invocation{
		Name:    "sast semgrep",
		Command: []string{"sh", "-c", "echo hello"},
		Env:     []string{"SCANPIPE_TEST=1"},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if exe.LogPath == "" {
		t.Fatal("expected a transcript path")
	}
	if !strings.HasPrefix(exe.LogPath, dir) || !strings.HasSuffix(exe.LogPath, "001-sast_semgrep.log") {
		t.Errorf("unexpected transcript path %s", exe.LogPath)
	}
	data, err := os.ReadFile(exe.LogPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	for _, want := range []string{"command: sh -c echo hello", "exit: 0", "hello"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("transcript missing %q:\n%s", want, data)
		}
	}
}

func TestInvokeTimeoutKillsProcessTree(t *testing.T) {
	iv := NewInvoker("")

	start := time.Now()
	exe, err := iv.Invoke(context.Background(), domain.Invocation{
		Name: "sleeper",
		// the background sleep keeps stdout open; only a group kill ends it
		Command: []string{"sh", "-c", "sleep 30 & sleep 30; wait"},
		Timeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if !exe.TimedOut {
		t.Errorf("expected TimedOut, got exit %d", exe.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("process tree was not killed promptly (%s)", elapsed)
	}
}

func TestInvokeParentCancelIsNotTimeout(t *testing.T) {
	iv := NewInvoker("")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	exe, err := iv.Invoke(ctx, domain.Invocation{
		Name:    "canceled",
		Command: []string{"sh", "-c", "sleep 30"},
		Timeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exe.TimedOut {
		t.Error("external cancellation must not be reported as timeout")
	}
	if exe.ExitCode == 0 {
		t.Error("killed process should not report exit 0")
	}
}

func TestInvokeMissingTool(t *testing.T) {
	iv := NewInvoker("")

	_, err := iv.Invoke(context.Background(), domain.Invocation{
		Name:    "missing",
		Command: []string{"scanpipe-definitely-not-installed"},
	})
	if !errors.Is(err, domain.ErrToolMissing) {
		t.Fatalf("expected ErrToolMissing, got %v", err)
	}
	if domain.KindOf(err) != domain.ErrKindToolMissing {
		t.Errorf("expected kind TOOL_MISSING, got %s", domain.KindOf(err))
	}
}

func TestInvokeEmptyCommand(t *testing.T) {
	iv := NewInvoker("")
	if _, err := iv.Invoke(context.Background(), domain.Invocation{Name: "empty"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
