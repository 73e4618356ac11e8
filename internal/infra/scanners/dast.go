package scanners

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/scanpipe/internal/domain/scans"
	"github.com/bryanwahyu/scanpipe/internal/infra/executor/docker"
)

const (
	defaultZAPImage = "ghcr.io/zaproxy/zaproxy:stable"
	removeTimeout   = 30 * time.Second
)

// zap-baseline.py exit codes
const (
	zapPass    = 0
	zapFail    = 1
	zapWarn    = 2
	zapHarness = 3
)

// DAST runs the passive OWASP ZAP baseline scan in a container against a live endpoint.
// It does not wait for readiness; the environment controller does.
type DAST struct {
	Base
	DockerBinary  string // default "docker"
	Image         string
	Network       string // default "host"
	SpiderMinutes int    // -m, default 1
	ContainerName string // default scanpipe-zap-<uuid>
}

func (d *DAST) Kind() domain.Kind { return domain.KindDAST }

func (d *DAST) Run(ctx context.Context, target domain.Target) domain.Result {
	started := time.Now()
	if err := target.Expect(domain.TargetEndpoint); err != nil {
		return wrongTarget(started, err)
	}
	if err := validateEndpoint(target.Value()); err != nil {
		return wrongTarget(started, err)
	}
	if err := d.prepareOutDir(); err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, "", "dast: %v", err)
	}
	outDir, err := filepath.Abs(d.OutDir)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, "", "dast: %v", err)
	}
	// the zap image runs as an unprivileged user
	_ = os.Chmod(outDir, 0o777)

	htmlReport := filepath.Join(outDir, "dast-report.html")
	jsonReport := filepath.Join(outDir, "dast-report.json")
	_ = os.Remove(htmlReport)
	_ = os.Remove(jsonReport)

	spec := d.runSpec(outDir, target.Value())
	exe, res, ok := d.run(ctx, started, domain.Invocation{
		Name:    "dast-zap-baseline",
		Command: docker.Command(d.DockerBinary, spec),
	})
	if !ok {
		if exe.TimedOut || ctx.Err() != nil {
			d.removeContainer(ctx, spec.Name)
		}
		return res
	}

	switch exe.ExitCode {
	case zapPass, zapFail, zapWarn:
	case zapHarness:
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath,
			"zap baseline harness failure: %s", strings.TrimSpace(tail(exe.Stdout, 400)))
	default:
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath,
			"zap baseline exited %d: %s", exe.ExitCode, strings.TrimSpace(tail(exe.Stderr, 400)))
	}

	counts, report, err := readZAPReport(jsonReport, htmlReport)
	if err != nil {
		return domain.ToolFailure(domain.ErrKindToolError, started, exe.LogPath, "%v", err)
	}

	res = domain.Gate(counts, d.threshold(), started, report)
	if exe.ExitCode == zapFail && res.Passed() {
		// a FAIL rule fired regardless of our threshold
		res.Outcome = domain.OutcomeFailedFindings
		res.Kind = domain.ErrKindFindingsAboveThreshold
		res.Message = "zap baseline reported FAIL rules"
	}
	return res
}

func (d *DAST) runSpec(outDir, endpoint string) docker.RunSpec {
	image := d.Image
	if image == "" {
		image = defaultZAPImage
	}
	network := d.Network
	if network == "" {
		network = "host"
	}
	minutes := d.SpiderMinutes
	if minutes <= 0 {
		minutes = 1
	}
	name := d.ContainerName
	if name == "" {
		name = docker.ContainerName("scanpipe-zap", uuid.NewString())
	}
	return docker.RunSpec{
		Name:    name,
		Image:   image,
		Network: network,
		Mounts:  map[string]string{outDir: "/zap/wrk"},
		Args: []string{"zap-baseline.py",
			"-t", endpoint,
			"-r", "dast-report.html",
			"-J", "dast-report.json",
			"-m", strconv.Itoa(minutes),
		},
	}
}

// removeContainer kills a ZAP container left behind by a killed docker client.
// It runs detached from ctx so cancellation cannot skip it.
func (d *DAST) removeContainer(ctx context.Context, name string) {
	exe, err := d.Invoker.Invoke(context.WithoutCancel(ctx), domain.Invocation{
		Name:    "dast-zap-remove",
		Command: docker.RemoveCommand(d.DockerBinary, name),
		Timeout: removeTimeout,
	})
	switch {
	case err != nil:
		log.Printf("dast container cleanup failed name=%s: %v", name, err)
	case exe.TimedOut || exe.ExitCode != 0:
		log.Printf("dast container cleanup failed name=%s exit=%d timed_out=%t", name, exe.ExitCode, exe.TimedOut)
	default:
		log.Printf("dast container removed name=%s", name)
	}
}

func readZAPReport(jsonPath, htmlPath string) (domain.SeverityCounts, string, error) {
	if data, err := os.ReadFile(jsonPath); err == nil {
		counts, perr := domain.ParseZAPJSON(data)
		if perr == nil {
			return counts, jsonPath, nil
		}
	}
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return domain.SeverityCounts{}, "", fmt.Errorf("zap baseline produced no report: %w", err)
	}
	return domain.ParseZAPHTML(data), htmlPath, nil
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: need an http(s) URL", raw)
	}
	return nil
}
