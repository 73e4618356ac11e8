package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/scanpipe/internal/config"
	"github.com/bryanwahyu/scanpipe/internal/domain/scans"
	"github.com/bryanwahyu/scanpipe/internal/infra/dockerclient"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config, the scanner tools and the Docker daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printPlan(out, cfg)

		var ping func(context.Context) error
		if needsDocker(cfg) {
			if engine, err := dockerclient.New(); err == nil {
				defer engine.Close()
				ping = engine.Ping
			} else {
				ping = func(context.Context) error { return err }
			}
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if failed := preflight(ctx, out, cfg, exec.LookPath, ping); failed > 0 {
			return setupError("%d check(s) failed", failed)
		}
		fmt.Fprintln(out, "ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func printPlan(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "stages:")
	for i, st := range cfg.Stages {
		env := ""
		if st.NeedsEnvironment() {
			env = " (ephemeral instance)"
		} else if st.Endpoint != "" {
			env = " -> " + st.Endpoint
		}
		fmt.Fprintf(w, "  [%d] %-12s kind=%-9s policy=%-8s threshold=%s%s\n",
			i+1, st.Name, st.Kind, st.Policy, st.Threshold, env)
	}
}

func needsDocker(cfg *config.Config) bool {
	for _, st := range cfg.Stages {
		if st.Kind == string(scans.KindContainer) || st.Kind == string(scans.KindDAST) {
			return true
		}
	}
	return false
}

// requiredTools lists the executables the configured pipeline invokes.
func requiredTools(cfg *config.Config) []string {
	seen := map[string]bool{}
	var tools []string
	add := func(bin string) {
		if bin != "" && !seen[bin] {
			seen[bin] = true
			tools = append(tools, bin)
		}
	}
	if cfg.Source.Repo != "" {
		add("git")
	}
	envNeeded := false
	for _, st := range cfg.Stages {
		switch scans.Kind(st.Kind) {
		case scans.KindSAST:
			add(cfg.Scanners.SAST.Binary)
		case scans.KindSCA:
			add(cfg.Scanners.SCA.Binary)
		case scans.KindContainer:
			add(cfg.Scanners.Container.Binary)
			envNeeded = true
		case scans.KindDAST:
			add(cfg.Scanners.DAST.DockerBinary)
		}
		if st.NeedsEnvironment() {
			envNeeded = true
		}
	}
	if envNeeded {
		add(cfg.Environment.DockerBinary)
		if len(cfg.Environment.ComposeCommand) > 0 {
			add(cfg.Environment.ComposeCommand[0])
		}
	}
	return tools
}

func preflight(ctx context.Context, w io.Writer, cfg *config.Config, lookPath func(string) (string, error), ping func(context.Context) error) int {
	failed := 0
	for _, tool := range requiredTools(cfg) {
		if p, err := lookPath(tool); err != nil {
			fmt.Fprintf(w, "  tool %-10s MISSING\n", tool)
			failed++
		} else {
			fmt.Fprintf(w, "  tool %-10s %s\n", tool, p)
		}
	}
	if ping != nil {
		if err := ping(ctx); err != nil {
			fmt.Fprintf(w, "  docker daemon   UNREACHABLE: %v\n", err)
			failed++
		} else {
			fmt.Fprintln(w, "  docker daemon   ok")
		}
	}
	return failed
}
