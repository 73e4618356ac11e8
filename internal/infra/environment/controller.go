package environment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// ImageChecker reports whether an image tag already exists locally.
type ImageChecker interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// Options configures the compose-managed instance.
type Options struct {
	ProjectDir     string
	ComposeFile    string
	ProjectName    string
	ComposeCommand []string // default: docker compose
	DockerBinary   string   // default: docker

	ImageTag     string
	BuildContext string
	Dockerfile   string
	Rebuild      bool

	ReadyURL string
	Endpoint string // what DAST targets; defaults to ReadyURL

	PollInterval   time.Duration
	ReadyTimeout   time.Duration
	BuildTimeout   time.Duration
	ComposeTimeout time.Duration
}

func (o *Options) defaults() {
	if len(o.ComposeCommand) == 0 {
		o.ComposeCommand = []string{"docker", "compose"}
	}
	if o.DockerBinary == "" {
		o.DockerBinary = "docker"
	}
	if o.Dockerfile == "" {
		o.Dockerfile = "Dockerfile"
	}
	if o.BuildContext == "" {
		o.BuildContext = "."
	}
	if o.Endpoint == "" {
		o.Endpoint = o.ReadyURL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 2 * time.Minute
	}
}

// Controller owns the lifecycle of one ephemeral instance for one run.
// It is the only writer of its Handle; callers get copies.
type Controller struct {
	opts    Options
	invoker scans.Invoker
	images  ImageChecker
	prober  Prober

	mu          sync.Mutex
	handle      pipeline.Handle
	upAttempted bool

	imageOnce sync.Once
	imageRef  string
	imageErr  error
}

// NewController; images may be nil, in which case the image is always built.
func NewController(opts Options, invoker scans.Invoker, images ImageChecker, prober Prober) *Controller {
	opts.defaults()
	if prober == nil {
		prober = NewHTTPProber()
	}
	return &Controller{
		opts:    opts,
		invoker: invoker,
		images:  images,
		prober:  prober,
		handle:  pipeline.Handle{State: pipeline.EnvNotStarted},
	}
}

// Handle returns a snapshot of the current state.
func (c *Controller) Handle() pipeline.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() pipeline.Handle {
	h := c.handle
	h.Warnings = append([]string(nil), c.handle.Warnings...)
	return h
}

// EnsureImage builds the image at most once per controller, skipping the
// build when the engine already has the tag and Rebuild is off.
func (c *Controller) EnsureImage(ctx context.Context) (string, error) {
	c.imageOnce.Do(func() {
		c.imageRef, c.imageErr = c.ensureImage(ctx)
	})
	return c.imageRef, c.imageErr
}

func (c *Controller) ensureImage(ctx context.Context) (string, error) {
	tag := c.opts.ImageTag
	if tag == "" {
		return "", scans.NewError(scans.ErrKindToolError, "image tag not configured")
	}
	if c.images != nil && !c.opts.Rebuild {
		exists, err := c.images.ImageExists(ctx, tag)
		if err != nil {
			log.Printf("env image check failed tag=%s: %v", tag, err)
		} else if exists {
			log.Printf("env image present tag=%s", tag)
			return tag, nil
		}
	}

	log.Printf("env image build tag=%s context=%s dockerfile=%s", tag, c.opts.BuildContext, c.opts.Dockerfile)
	exe, err := c.invoker.Invoke(ctx, scans.Invocation{
		Name:    "image-build",
		Command: []string{c.opts.DockerBinary, "build", "-t", tag, "-f", c.opts.Dockerfile, c.opts.BuildContext},
		Dir:     c.opts.ProjectDir,
		Timeout: c.opts.BuildTimeout,
	})
	switch {
	case err != nil:
		return "", err
	case exe.TimedOut:
		return "", &scans.Error{Kind: scans.ErrKindTimeout, Message: fmt.Sprintf("image build timed out after %s", c.opts.BuildTimeout)}
	case exe.ExitCode != 0:
		return "", &scans.Error{
			Kind:    scans.ErrKindToolError,
			Message: fmt.Sprintf("image build exited %d: %s", exe.ExitCode, lastLine(exe.Stderr)),
		}
	}
	return tag, nil
}

// Start brings the instance up and waits for readiness. Only the first call
// has effect; later calls return the current handle.
func (c *Controller) Start(ctx context.Context) pipeline.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle.State != pipeline.EnvNotStarted {
		return c.snapshot()
	}
	c.transition(pipeline.EnvStarting)

	ref, err := c.EnsureImage(ctx)
	if err != nil {
		kind := scans.ErrKindEnvironmentStartFailure
		if scans.KindOf(err) == scans.ErrKindTimeout {
			kind = scans.ErrKindTimeout
		}
		return c.startFailed(kind, fmt.Errorf("ensure image: %w", err))
	}
	c.handle.ImageRef = ref

	c.upAttempted = true
	exe, err := c.compose(ctx, "compose-up", "up", "-d")
	switch {
	case err != nil:
		return c.startFailed(scans.ErrKindEnvironmentStartFailure, fmt.Errorf("compose up: %w", err))
	case exe.TimedOut:
		return c.startFailed(scans.ErrKindTimeout, fmt.Errorf("compose up timed out after %s", c.opts.ComposeTimeout))
	case exe.ExitCode != 0:
		return c.startFailed(scans.ErrKindEnvironmentStartFailure,
			fmt.Errorf("compose up exited %d: %s", exe.ExitCode, lastLine(exe.Stderr)))
	}

	if err := c.waitReady(ctx); err != nil {
		return c.startFailed(scans.KindOf(err), err)
	}
	c.handle.Endpoint = c.opts.Endpoint
	c.transition(pipeline.EnvReady)
	return c.snapshot()
}

// Stop tears the instance down. It never fails: problems leave the handle in
// StopFailed with a warning. Calling it again, or before Start, does nothing.
func (c *Controller) Stop(ctx context.Context) pipeline.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.handle.State {
	case pipeline.EnvNotStarted, pipeline.EnvStopped, pipeline.EnvStopFailed:
		return c.snapshot()
	}
	c.transition(pipeline.EnvStopping)

	if !c.upAttempted {
		c.transition(pipeline.EnvStopped)
		return c.snapshot()
	}

	exe, err := c.compose(ctx, "compose-down", "down", "--volumes", "--remove-orphans")
	var warn string
	switch {
	case err != nil:
		warn = fmt.Sprintf("compose down: %v", err)
	case exe.TimedOut:
		warn = "compose down timed out"
	case exe.ExitCode != 0:
		warn = fmt.Sprintf("compose down exited %d: %s", exe.ExitCode, lastLine(exe.Stderr))
	}
	if warn != "" {
		c.handle.Warnings = append(c.handle.Warnings, warn)
		log.Printf("env stop warning project=%s: %s", c.opts.ProjectName, warn)
		c.transition(pipeline.EnvStopFailed)
		return c.snapshot()
	}
	c.transition(pipeline.EnvStopped)
	return c.snapshot()
}

func (c *Controller) compose(ctx context.Context, name string, args ...string) (scans.Execution, error) {
	cmd := append([]string(nil), c.opts.ComposeCommand...)
	if c.opts.ComposeFile != "" {
		cmd = append(cmd, "-f", c.opts.ComposeFile)
	}
	if c.opts.ProjectName != "" {
		cmd = append(cmd, "-p", c.opts.ProjectName)
	}
	cmd = append(cmd, args...)

	var env []string
	if c.handle.ImageRef != "" {
		env = append(env, "IMAGE_TAG="+c.handle.ImageRef)
	}
	return c.invoker.Invoke(ctx, scans.Invocation{
		Name:    name,
		Command: cmd,
		Dir:     c.opts.ProjectDir,
		Env:     env,
		Timeout: c.opts.ComposeTimeout,
	})
}

// waitReady polls ReadyURL until any response below 500, ReadyTimeout or ctx.
func (c *Controller) waitReady(ctx context.Context) error {
	if c.opts.ReadyURL == "" {
		return nil
	}
	deadline := time.NewTimer(c.opts.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.opts.PollInterval)
	defer tick.Stop()

	probeTimeout := c.opts.PollInterval
	if probeTimeout < time.Second {
		probeTimeout = time.Second
	}

	attempts := 0
	var last error
	for {
		attempts++
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		status, err := c.prober.Probe(pctx, c.opts.ReadyURL)
		cancel()
		if err == nil && status < 500 {
			log.Printf("env ready url=%s status=%d attempts=%d", c.opts.ReadyURL, status, attempts)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		last = err

		select {
		case <-ctx.Done():
			return &scans.Error{Kind: scans.ErrKindCanceled, Message: "readiness wait canceled", Cause: ctx.Err()}
		case <-deadline.C:
			return &scans.Error{
				Kind:    scans.ErrKindTimeout,
				Message: fmt.Sprintf("%s not ready after %s (%d probes)", c.opts.ReadyURL, c.opts.ReadyTimeout, attempts),
				Cause:   last,
			}
		case <-tick.C:
		}
	}
}

func (c *Controller) startFailed(kind scans.ErrorKind, err error) pipeline.Handle {
	if kind == "" || kind == scans.ErrKindToolError {
		kind = scans.ErrKindEnvironmentStartFailure
	}
	var se *scans.Error
	if !errors.As(err, &se) {
		err = &scans.Error{Kind: kind, Message: "environment start failed", Cause: err}
	}
	c.handle.Kind = kind
	c.handle.Err = err
	log.Printf("env start failed project=%s kind=%s: %v", c.opts.ProjectName, kind, err)
	c.transition(pipeline.EnvStartFailed)
	return c.snapshot()
}

func (c *Controller) transition(to pipeline.EnvState) {
	log.Printf("env state project=%s from=%s to=%s", c.opts.ProjectName, c.handle.State, to)
	c.handle.State = to
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	return lines[len(lines)-1]
}
