package scanners

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

const auditModerate = `{"auditReportVersion":2,"vulnerabilities":{},"metadata":{"vulnerabilities":
 {"info":0,"low":1,"moderate":2,"high":0,"critical":0,"total":3}}}`

const auditHigh = `{"auditReportVersion":2,"vulnerabilities":{},"metadata":{"vulnerabilities":
 {"info":0,"low":0,"moderate":0,"high":1,"critical":1,"total":2}}}`

const auditENOLOCK = `{"error":{"code":"ENOLOCK","summary":"This command requires an existing lockfile.","detail":""}}`

func sourceWithLockfile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "package-lock.json"), `{"lockfileVersion":3}`)
	return dir
}

// npmHandler answers `npm ci` with ciExit and `npm audit` with auditExit/auditOut.
func npmHandler(ciExit, auditExit int, auditOut string) func(domain.Invocation) (domain.Execution, error) {
	return func(inv domain.Invocation) (domain.Execution, error) {
		if inv.Command[1] == "ci" {
			return domain.Execution{ExitCode: ciExit, Stderr: []byte("npm ERR! cipm")}, nil
		}
		return domain.Execution{ExitCode: auditExit, Stdout: []byte(auditOut)}, nil
	}
}

func TestSCARequiresLockfile(t *testing.T) {
	inv := &fakeInvoker{}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}}

	res := s.Run(context.Background(), domain.SourceTree(t.TempDir()))
	if res.Outcome != domain.OutcomeToolError {
		t.Fatalf("expected TOOL_ERROR, got %s", res.Outcome)
	}
	if len(inv.calls) != 0 {
		t.Errorf("npm must not run without a lockfile")
	}
}

func TestSCAShrinkwrapAccepted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "npm-shrinkwrap.json"), `{}`)
	inv := &fakeInvoker{handle: npmHandler(0, 0, auditModerate)}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}}

	if res := s.Run(context.Background(), domain.SourceTree(dir)); !res.Passed() {
		t.Fatalf("expected PASSED, got %s (%s)", res.Outcome, res.Message)
	}
}

func TestSCAInstallFailureIsToolError(t *testing.T) {
	inv := &fakeInvoker{handle: npmHandler(1, 0, auditModerate)}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}}

	res := s.Run(context.Background(), domain.SourceTree(sourceWithLockfile(t)))
	if res.Outcome != domain.OutcomeToolError || res.Kind != domain.ErrKindToolError {
		t.Fatalf("expected TOOL_ERROR, got %s/%s", res.Outcome, res.Kind)
	}
	if len(inv.calls) != 1 {
		t.Errorf("audit must not run after a failed install, got %d calls", len(inv.calls))
	}
}

func TestSCAExitOneBelowThresholdPasses(t *testing.T) {
	out := t.TempDir()
	src := sourceWithLockfile(t)
	inv := &fakeInvoker{handle: npmHandler(0, 1, auditModerate)}
	s := &SCA{Base: Base{Invoker: inv, OutDir: out}}

	res := s.Run(context.Background(), domain.SourceTree(src))
	if !res.Passed() {
		t.Fatalf("expected PASSED, got %s (%s)", res.Outcome, res.Message)
	}
	if res.Counts.Medium != 2 || res.Counts.Low != 1 || res.Counts.Total != 3 {
		t.Errorf("unexpected counts %+v", res.Counts)
	}
	if res.RawOutput != filepath.Join(out, "sca-audit.json") {
		t.Errorf("unexpected raw output %s", res.RawOutput)
	}
	if data, err := os.ReadFile(res.RawOutput); err != nil || string(data) != auditModerate {
		t.Errorf("audit report not written: %v", err)
	}
	for _, c := range inv.calls {
		if c.Dir != src {
			t.Errorf("npm must run inside the source tree, got dir %q", c.Dir)
		}
	}
}

func TestSCAFindingsAboveThreshold(t *testing.T) {
	inv := &fakeInvoker{handle: npmHandler(0, 1, auditHigh)}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}}

	res := s.Run(context.Background(), domain.SourceTree(sourceWithLockfile(t)))
	if res.Outcome != domain.OutcomeFailedFindings {
		t.Fatalf("expected FAILED_FINDINGS, got %s", res.Outcome)
	}
	if res.Counts.Critical != 1 || res.Counts.High != 1 {
		t.Errorf("unexpected counts %+v", res.Counts)
	}
}

func TestSCAErrorObjectIsToolError(t *testing.T) {
	inv := &fakeInvoker{handle: npmHandler(0, 1, auditENOLOCK)}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}, SkipInstall: true}

	res := s.Run(context.Background(), domain.SourceTree(sourceWithLockfile(t)))
	if res.Outcome != domain.OutcomeToolError {
		t.Fatalf("expected TOOL_ERROR, got %s", res.Outcome)
	}
	if len(inv.calls) != 1 || inv.calls[0].Command[1] != "audit" {
		t.Errorf("SkipInstall should only run audit, got %v", inv.calls)
	}
}

func TestSCAUnexpectedExit(t *testing.T) {
	inv := &fakeInvoker{handle: npmHandler(0, 7, "")}
	s := &SCA{Base: Base{Invoker: inv, OutDir: t.TempDir()}}

	if res := s.Run(context.Background(), domain.SourceTree(sourceWithLockfile(t))); res.Outcome != domain.OutcomeToolError {
		t.Fatalf("expected TOOL_ERROR, got %s", res.Outcome)
	}
}
