package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bryanwahyu/scanpipe/internal/application"
	apppipeline "github.com/bryanwahyu/scanpipe/internal/application/pipeline"
	appruns "github.com/bryanwahyu/scanpipe/internal/application/runs"
	"github.com/bryanwahyu/scanpipe/internal/config"
	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
	"github.com/bryanwahyu/scanpipe/internal/infra/environment"
	"github.com/bryanwahyu/scanpipe/internal/infra/executor"
	"github.com/bryanwahyu/scanpipe/internal/infra/executor/docker"
	"github.com/bryanwahyu/scanpipe/internal/infra/scanners"
	"github.com/bryanwahyu/scanpipe/internal/infra/source"
)

// imageEngine is the Docker Engine API surface the pipeline uses.
type imageEngine interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// pipelineFactory builds fresh adapters, controller and sequencer for every
// run, so per-run output dirs and the once-per-run image build stay isolated.
type pipelineFactory struct {
	cfg    *config.Config
	store  pipeline.ArtifactStore // nil: dispositions recorded, nothing uploaded
	images imageEngine            // nil: always build, no container pre-check
	clock  application.Clock
}

func newPipelineFactory(cfg *config.Config, d *deps) *pipelineFactory {
	f := &pipelineFactory{cfg: cfg, store: d.store, clock: application.SystemClock{}}
	if d.engine != nil {
		f.images = d.engine
	}
	return f
}

func (f *pipelineFactory) Run(ctx context.Context, runID string, req appruns.Request) (*apppipeline.Outcome, error) {
	seq, err := f.build(runID, req)
	if err != nil {
		return nil, err
	}
	return seq.Run(ctx, runID)
}

func (f *pipelineFactory) build(runID string, req appruns.Request) (*apppipeline.Sequencer, error) {
	cfg := f.cfg
	workDir, err := filepath.Abs(filepath.Join(cfg.Run.WorkDir, runID))
	if err != nil {
		return nil, err
	}
	logDir, err := filepath.Abs(filepath.Join(cfg.Run.LogDir, runID))
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{workDir, logDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("run dir %s: %w", dir, err)
		}
	}
	invoker := executor.NewInvoker(logDir)

	src := &source.Provider{
		Path:        cfg.Source.Path,
		Repo:        cfg.Source.Repo,
		Ref:         cfg.Source.Ref,
		CheckoutDir: filepath.Join(workDir, "src"),
		Invoker:     invoker,
	}
	// branch dari trigger override ref di config
	if req.Branch != "" && cfg.Source.Repo != "" {
		src.Ref = req.Branch
	}

	seq := &apppipeline.Sequencer{
		Source:      src,
		Artifacts:   cfg.Artifacts.Paths,
		LogDir:      logDir,
		StopTimeout: cfg.Run.StopTimeout.Duration,
		Clock:       f.clock,
	}
	// tanpa store tetap dicatat: absent / failed per artifact
	seq.Collector = apppipeline.NewCollector(f.store, cfg.Artifacts.Prefix)

	specs := make([]pipeline.StageSpec, 0, len(cfg.Stages))
	needsController := false
	for _, st := range cfg.Stages {
		adapter, err := f.adapter(runID, st, invoker, filepath.Join(workDir, st.Name))
		if err != nil {
			return nil, err
		}
		policy, _ := pipeline.ParsePolicy(st.Policy)
		specs = append(specs, pipeline.StageSpec{
			Name:                st.Name,
			Adapter:             adapter,
			Policy:              policy,
			RequiresEnvironment: st.NeedsEnvironment(),
		})
		if st.NeedsEnvironment() || adapter.Kind() == scans.KindContainer {
			needsController = true
		}
		if adapter.Kind() == scans.KindDAST && !st.NeedsEnvironment() && seq.Endpoint == "" {
			seq.Endpoint = st.Endpoint
		}
	}
	stages, err := pipeline.NewStages(specs...)
	if err != nil {
		return nil, err
	}
	seq.Stages = stages

	if needsController {
		seq.Env = f.controller(invoker)
	}
	return seq, nil
}

func (f *pipelineFactory) adapter(runID string, st config.StageConfig, invoker scans.Invoker, outDir string) (scans.Adapter, error) {
	cfg := f.cfg
	threshold, ok := scans.ParseSeverity(st.Threshold)
	if !ok {
		return nil, fmt.Errorf("stage %q: unknown threshold %q", st.Name, st.Threshold)
	}
	timeout := st.Timeout.Duration
	if timeout <= 0 {
		timeout = cfg.Run.InvocationTimeout.Duration
	}
	base := scanners.Base{Invoker: invoker, OutDir: outDir, Threshold: threshold, Timeout: timeout}

	kind, _ := scans.ParseKind(st.Kind)
	switch kind {
	case scans.KindSAST:
		return &scanners.SAST{Base: base, Binary: cfg.Scanners.SAST.Binary, Rules: cfg.Scanners.SAST.Rules}, nil
	case scans.KindSCA:
		return &scanners.SCA{Base: base, Binary: cfg.Scanners.SCA.Binary, SkipInstall: cfg.Scanners.SCA.SkipInstall}, nil
	case scans.KindContainer:
		c := &scanners.Container{Base: base, Binary: cfg.Scanners.Container.Binary}
		if cfg.Scanners.Container.PreCheck && f.images != nil {
			c.Images = f.images
		}
		return c, nil
	case scans.KindDAST:
		d := cfg.Scanners.DAST
		return &scanners.DAST{
			Base:          base,
			DockerBinary:  d.DockerBinary,
			Image:         d.Image,
			Network:       d.Network,
			SpiderMinutes: d.SpiderMinutes,
			ContainerName: docker.ContainerName("scanpipe", runID, st.Name),
		}, nil
	}
	return nil, fmt.Errorf("stage %q: unknown kind %q", st.Name, st.Kind)
}

func (f *pipelineFactory) controller(invoker scans.Invoker) *environment.Controller {
	e := f.cfg.Environment
	opts := environment.Options{
		ComposeFile:    e.ComposeFile,
		ProjectName:    e.ProjectName,
		ComposeCommand: e.ComposeCommand,
		DockerBinary:   e.DockerBinary,
		ImageTag:       e.ImageTag,
		BuildContext:   e.BuildContext,
		Dockerfile:     e.Dockerfile,
		Rebuild:        e.Rebuild,
		ReadyURL:       e.ReadyURL,
		Endpoint:       e.Endpoint,
		PollInterval:   e.PollInterval.Duration,
		ReadyTimeout:   e.ReadyTimeout.Duration,
		BuildTimeout:   e.BuildTimeout.Duration,
		ComposeTimeout: e.ComposeTimeout.Duration,
	}
	var images environment.ImageChecker
	if f.images != nil {
		images = f.images
	}
	return environment.NewController(opts, invoker, images, nil)
}
