package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
)

// Provider yields the source tree for one run: a local path, or a shallow
// git clone into CheckoutDir when Repo is set. The tree is prepared once.
type Provider struct {
	Path        string
	Repo        string
	Ref         string
	CheckoutDir string
	Invoker     scans.Invoker

	once sync.Once
	dir  string
	err  error
}

func (p *Provider) Prepare(ctx context.Context) (string, error) {
	p.once.Do(func() {
		if p.Repo != "" {
			p.dir, p.err = p.clone(ctx)
			return
		}
		p.dir, p.err = p.local()
	})
	return p.dir, p.err
}

func (p *Provider) local() (string, error) {
	if p.Path == "" {
		return "", fmt.Errorf("source path not configured")
	}
	abs, err := filepath.Abs(p.Path)
	if err != nil {
		return "", fmt.Errorf("source path %s: %w", p.Path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("source path %s: %w", abs, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("source path %s is not a directory", abs)
	}
	return abs, nil
}

func (p *Provider) clone(ctx context.Context) (string, error) {
	if p.CheckoutDir == "" {
		return "", fmt.Errorf("checkout dir not configured for %s", p.Repo)
	}
	if err := os.MkdirAll(filepath.Dir(p.CheckoutDir), 0o755); err != nil {
		return "", fmt.Errorf("prepare checkout dir: %w", err)
	}
	cmd := []string{"git", "clone", "--depth", "1"}
	if p.Ref != "" {
		cmd = append(cmd, "--branch", p.Ref)
	}
	cmd = append(cmd, p.Repo, p.CheckoutDir)

	log.Printf("source clone repo=%s ref=%s dir=%s", p.Repo, p.Ref, p.CheckoutDir)
	exe, err := p.Invoker.Invoke(ctx, scans.Invocation{Name: "source-clone", Command: cmd})
	if err != nil {
		return "", fmt.Errorf("git clone: %w", err)
	}
	if exe.TimedOut || exe.ExitCode != 0 {
		return "", fmt.Errorf("git clone %s exited %d: %s", p.Repo, exe.ExitCode, string(exe.Stderr))
	}
	return p.CheckoutDir, nil
}
