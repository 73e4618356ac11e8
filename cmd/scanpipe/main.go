package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/scanpipe/internal/config"
)

// Version info - set by build flags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "scanpipe",
	Short: "Security scan pipeline orchestrator",
	Long: `scanpipe runs SAST, dependency audit, container image scan and DAST
stages in a declared order, gates each stage on its findings, always tears down
the ephemeral instance it started, and archives every report.

EXAMPLES
  # One pipeline run, exit status 1 when the verdict is FAILED
  $ scanpipe run --config scanpipe.yaml --commit $GIT_SHA

  # HTTP API with run history
  $ scanpipe serve

  # Check that the configured tools and Docker are available
  $ scanpipe validate`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries the process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// setupError is exit status 2: configuration, setup or sequencer defects.
func setupError(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(configFile)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, setupError("config load error: %w", err)
	}
	log.Printf("config loaded path=%s stages=%d", path, len(cfg.Stages))
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default $CONFIG_PATH or "+config.DefaultPath+")")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := rootCmd.Execute(); err != nil {
		code := 2
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if ee == nil || ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(code)
	}
}
