package scanners

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// trivyFindingsExit is passed via --exit-code so findings are told apart from crashes.
const trivyFindingsExit = 5

// ImageInspector checks whether an image exists in the local engine.
type ImageInspector interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// Container scans a built image with trivy.
type Container struct {
	Base
	Binary string         // default "trivy"
	Images ImageInspector // optional pre-check
}

func (c *Container) Kind() domain.Kind { return domain.KindContainer }

func (c *Container) Run(ctx context.Context, target domain.Target) domain.Result {
	started := time.Now()
	if err := target.Expect(domain.TargetImageReference); err != nil {
		return wrongTarget(started, err)
	}
	ref := target.Value()

	if c.Images != nil {
		exists, err := c.Images.ImageExists(ctx, ref)
		switch {
		case err != nil:
			// trivy may still resolve the image from a registry
			log.Printf("container pre-check skipped image=%s: %v", ref, err)
		case !exists:
			return domain.ToolFailure(domain.ErrKindToolError, started, "", "image %s not found in local engine", ref)
		}
	}
	if err := c.prepareOutDir(); err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, "", "container: %v", err)
	}

	bin := c.Binary
	if bin == "" {
		bin = "trivy"
	}
	report := filepath.Join(c.OutDir, "container.json")
	_ = os.Remove(report)

	exe, res, ok := c.run(ctx, started, domain.Invocation{
		Name: "container-trivy",
		Command: []string{bin, "image",
			"--format", "json",
			"--output", report,
			"--exit-code", "5",
			"--quiet",
			ref,
		},
	})
	if !ok {
		return res
	}
	if exe.ExitCode != 0 && exe.ExitCode != trivyFindingsExit {
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath,
			"trivy exited %d: %s", exe.ExitCode, strings.TrimSpace(tail(exe.Stderr, 400)))
	}

	data, err := os.ReadFile(report)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath, "trivy produced no report: %v", err)
	}
	counts, err := domain.ParseTrivyJSON(data)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, report, "%v", err)
	}
	return domain.Gate(counts, c.threshold(), started, report)
}
