package scanners

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

var lockfiles = []string{"package-lock.json", "npm-shrinkwrap.json"}

// SCA audits npm dependencies of a source tree.
type SCA struct {
	Base
	Binary      string // default "npm"
	SkipInstall bool
}

func (s *SCA) Kind() domain.Kind { return domain.KindSCA }

func (s *SCA) Run(ctx context.Context, target domain.Target) domain.Result {
	started := time.Now()
	if err := target.Expect(domain.TargetSourceTree); err != nil {
		return wrongTarget(started, err)
	}
	dir := target.Value()
	if !hasLockfile(dir) {
		return domain.ToolFailure(domain.ErrKindToolError, started, "",
			"no lockfile in %s (need %s)", dir, strings.Join(lockfiles, " or "))
	}
	if err := s.prepareOutDir(); err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, "", "sca: %v", err)
	}

	bin := s.Binary
	if bin == "" {
		bin = "npm"
	}

	if !s.SkipInstall {
		exe, res, ok := s.run(ctx, started, domain.Invocation{
			Name:    "sca-npm-ci",
			Command: []string{bin, "ci", "--ignore-scripts", "--no-audit", "--no-fund"},
			Dir:     dir,
		})
		if !ok {
			return res
		}
		// an unresolvable tree makes the audit meaningless
		if exe.ExitCode != 0 {
			return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath,
				"dependency install failed (exit %d): %s", exe.ExitCode, strings.TrimSpace(tail(exe.Stderr, 400)))
		}
	}

	exe, res, ok := s.run(ctx, started, domain.Invocation{
		Name:    "sca-npm-audit",
		Command: []string{bin, "audit", "--json"},
		Dir:     dir,
	})
	if !ok {
		return res
	}

	report := filepath.Join(s.OutDir, "sca-audit.json")
	if err := os.WriteFile(report, exe.Stdout, 0o644); err != nil {
		report = exe.LogPath
	}

	// npm audit: 0 nothing found, 1 vulnerabilities found
	if exe.ExitCode != 0 && exe.ExitCode != 1 {
		return domain.ToolFailure(domain.ErrKindToolError, started, report,
			"npm audit exited %d: %s", exe.ExitCode, strings.TrimSpace(tail(exe.Stderr, 400)))
	}
	counts, err := domain.ParseNPMAudit(exe.Stdout)
	if err != nil {
		// includes the npm error object (ENOLOCK, registry failures)
		return domain.ToolFailure(domain.ErrKindToolError, started, report, "%v", err)
	}
	return domain.Gate(counts, s.threshold(), started, report)
}

func hasLockfile(dir string) bool {
	for _, name := range lockfiles {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}
