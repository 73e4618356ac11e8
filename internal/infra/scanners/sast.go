package scanners

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// SAST runs semgrep over a source tree and gates on its SARIF report.
type SAST struct {
	Base
	Binary string // default "semgrep"
	Rules  string // --config value, default "auto"
}

func (s *SAST) Kind() domain.Kind { return domain.KindSAST }

func (s *SAST) Run(ctx context.Context, target domain.Target) domain.Result {
	started := time.Now()
	if err := target.Expect(domain.TargetSourceTree); err != nil {
		return wrongTarget(started, err)
	}
	if err := s.prepareOutDir(); err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, "", "sast: %v", err)
	}

	bin := s.Binary
	if bin == "" {
		bin = "semgrep"
	}
	rules := s.Rules
	if rules == "" {
		rules = "auto"
	}
	report := filepath.Join(s.OutDir, "sast.sarif")
	// stale report from an earlier attempt must not be parsed
	_ = os.Remove(report)

	exe, res, ok := s.run(ctx, started, domain.Invocation{
		Name: "sast-semgrep",
		Command: []string{bin, "scan",
			"--config", rules,
			"--sarif", "--output", report,
			"--metrics", "off",
			"--error",
			target.Value(),
		},
	})
	if !ok {
		return res
	}

	// 0 clean, 1 findings present, anything else is semgrep itself failing
	if exe.ExitCode != 0 && exe.ExitCode != 1 {
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath,
			"semgrep exited %d: %s", exe.ExitCode, strings.TrimSpace(tail(exe.Stderr, 400)))
	}

	data, err := os.ReadFile(report)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath, "semgrep produced no report: %v", err)
	}
	counts, err := domain.ParseSARIF(data)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, report, "%v", err)
	}
	return domain.Gate(counts, s.threshold(), started, report)
}
