package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appruns "github.com/bryanwahyu/scanpipe/internal/application/runs"
	"github.com/bryanwahyu/scanpipe/internal/config"
	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
	"github.com/bryanwahyu/scanpipe/internal/infra/environment"
	"github.com/bryanwahyu/scanpipe/internal/infra/scanners"
	"github.com/bryanwahyu/scanpipe/internal/infra/source"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml), ".yaml")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	dir := t.TempDir()
	cfg.Run.WorkDir = filepath.Join(dir, "work")
	cfg.Run.LogDir = filepath.Join(dir, "logs")
	return cfg
}

type presentImages struct{}

func (presentImages) ImageExists(context.Context, string) (bool, error) { return true, nil }

func TestBuildDefaultPipeline(t *testing.T) {
	cfg := testConfig(t, "")
	f := &pipelineFactory{cfg: cfg, images: presentImages{}}

	seq, err := f.build("run-1", appruns.Request{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(seq.Stages) != 4 {
		t.Fatalf("stages = %d", len(seq.Stages))
	}
	wantKinds := []scans.Kind{scans.KindSAST, scans.KindSCA, scans.KindContainer, scans.KindDAST}
	wantPolicies := []pipeline.Policy{pipeline.PolicyFatal, pipeline.PolicyFatal, pipeline.PolicyFatal, pipeline.PolicyAdvisory}
	for i, st := range seq.Stages {
		if st.Kind() != wantKinds[i] || st.Ordinal != i+1 || st.Policy != wantPolicies[i] {
			t.Errorf("stage %d = %+v", i, st)
		}
	}
	if !seq.Stages[3].RequiresEnvironment {
		t.Error("dast should require the environment by default")
	}
	if _, ok := seq.Env.(*environment.Controller); !ok {
		t.Fatalf("env = %T", seq.Env)
	}
	if seq.Collector == nil || seq.Collector.Store != nil {
		t.Errorf("collector without store expected, got %+v", seq.Collector)
	}
	if seq.LogDir != filepath.Join(cfg.Run.LogDir, "run-1") {
		t.Errorf("log dir = %s", seq.LogDir)
	}
	for _, dir := range []string{filepath.Join(cfg.Run.WorkDir, "run-1"), filepath.Join(cfg.Run.LogDir, "run-1")} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("expected run dir %s", dir)
		}
	}

	sast := seq.Stages[0].Adapter.(*scanners.SAST)
	if sast.OutDir != filepath.Join(cfg.Run.WorkDir, "run-1", "sast") {
		t.Errorf("sast out dir = %s", sast.OutDir)
	}
	if sast.Threshold != scans.SeverityHigh || sast.Timeout != cfg.Run.InvocationTimeout.Duration {
		t.Errorf("sast base = %+v", sast.Base)
	}
	if c := seq.Stages[2].Adapter.(*scanners.Container); c.Images == nil {
		t.Error("container pre-check should use the engine")
	}
	if d := seq.Stages[3].Adapter.(*scanners.DAST); d.ContainerName != "scanpipe-run-1-dast" {
		t.Errorf("dast container name = %q", d.ContainerName)
	}
}

func TestBuildAdvisoryStaticEndpoint(t *testing.T) {
	cfg := testConfig(t, `
stages:
  - kind: sast
    policy: advisory
    threshold: low
    timeout: 45s
  - name: zap
    kind: dast
    requiresEnvironment: false
    endpoint: https://staging.example.com
source:
  repo: https://example.com/app.git
`)
	f := &pipelineFactory{cfg: cfg, store: nopStore{}}
	seq, err := f.build("run-2", appruns.Request{Branch: "release"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if seq.Env != nil {
		t.Errorf("no stage needs the environment, got %T", seq.Env)
	}
	if seq.Endpoint != "https://staging.example.com" {
		t.Errorf("endpoint = %q", seq.Endpoint)
	}
	if seq.Stages[0].Policy != pipeline.PolicyAdvisory || seq.Stages[1].RequiresEnvironment {
		t.Errorf("stages = %+v", seq.Stages)
	}
	sast := seq.Stages[0].Adapter.(*scanners.SAST)
	if sast.Threshold != scans.SeverityLow || sast.Timeout.Seconds() != 45 {
		t.Errorf("sast base = %+v", sast.Base)
	}
	src := seq.Source.(*source.Provider)
	if src.Repo != "https://example.com/app.git" || src.Ref != "release" {
		t.Errorf("source = %+v", src)
	}
	if seq.Collector == nil {
		t.Error("collector expected with a store")
	}
}

type nopStore struct{}

func (nopStore) Put(context.Context, string, string) (string, error) { return "mem://x", nil }

func TestExitCode(t *testing.T) {
	cases := []struct {
		run  runs.Run
		want int
	}{
		{runs.Run{Status: runs.StatusPassed, Verdict: pipeline.VerdictPassed}, 0},
		{runs.Run{Status: runs.StatusFailed, Verdict: pipeline.VerdictFailed}, 1},
		{runs.Run{Status: runs.StatusError}, 2},
	}
	for _, tc := range cases {
		if got := exitCode(&tc.run); got != tc.want {
			t.Errorf("exitCode(%s) = %d, want %d", tc.run.Status, got, tc.want)
		}
	}
}

func TestPrintRun(t *testing.T) {
	run := &runs.Run{ID: "r1", Summary: "run r1: FAILED\n", Triage: "upgrade lodash"}
	var buf bytes.Buffer
	if err := printRun(&buf, run, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "run r1: FAILED") || !strings.Contains(buf.String(), "upgrade lodash") {
		t.Errorf("text output = %q", buf.String())
	}
	buf.Reset()
	if err := printRun(&buf, run, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"id": "r1"`) {
		t.Errorf("json output = %q", buf.String())
	}
}

func TestPreflight(t *testing.T) {
	cfg := testConfig(t, "")
	tools := requiredTools(cfg)
	want := []string{"semgrep", "npm", "trivy", "docker"}
	if strings.Join(tools, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v", tools)
	}

	lookPath := func(bin string) (string, error) {
		if bin == "trivy" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + bin, nil
	}
	var buf bytes.Buffer
	failed := preflight(context.Background(), &buf, cfg, lookPath, func(context.Context) error { return nil })
	if failed != 1 || !strings.Contains(buf.String(), "trivy") || !strings.Contains(buf.String(), "MISSING") {
		t.Errorf("failed = %d, output = %s", failed, buf.String())
	}

	buf.Reset()
	failed = preflight(context.Background(), &buf, cfg, lookPath, func(context.Context) error { return errors.New("no daemon") })
	if failed != 2 || !strings.Contains(buf.String(), "UNREACHABLE") {
		t.Errorf("failed = %d, output = %s", failed, buf.String())
	}
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	printPlan(&buf, testConfig(t, ""))
	out := buf.String()
	if !strings.Contains(out, "[4] dast") || !strings.Contains(out, "ephemeral instance") {
		t.Errorf("plan = %s", out)
	}
}
