package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appruns "github.com/bryanwahyu/scanpipe/internal/application/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
)

var runFlags struct {
	json   bool
	commit string
	branch string
	source string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scan pipeline once",
	Long: `Run every configured stage once and print the summary.

Exit status: 0 when the verdict is PASSED, 1 when it is FAILED, 2 for
configuration or setup errors. SIGINT/SIGTERM abort the run at the next stage
boundary; the ephemeral instance is still torn down.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := openDeps(ctx, cfg)
		if err != nil {
			return setupError("%w", err)
		}
		defer d.Close()

		svc := &appruns.Service{
			Pipeline: newPipelineFactory(cfg, d),
			Repo:     d.runs,
			Errors:   d.errors,
			Triage:   d.triage,
		}
		triggeredBy := cfg.Run.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = "cli"
		}
		run, err := svc.Execute(ctx, appruns.Request{
			Source:      runFlags.source,
			CommitSHA:   runFlags.commit,
			Branch:      runFlags.branch,
			TriggeredBy: triggeredBy,
		})
		if err != nil {
			return setupError("%w", err)
		}
		if err := printRun(cmd.OutOrStdout(), run, runFlags.json); err != nil {
			log.Printf("print run error: %v", err)
		}
		if code := exitCode(run); code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.json, "json", false, "print the run record as JSON")
	runCmd.Flags().StringVar(&runFlags.commit, "commit", "", "commit SHA being scanned (recorded on the run)")
	runCmd.Flags().StringVar(&runFlags.branch, "branch", "", "branch being scanned; also the clone ref when source.repo is set")
	runCmd.Flags().StringVar(&runFlags.source, "source", "cli", "trigger source recorded on the run")
	rootCmd.AddCommand(runCmd)
}

func exitCode(run *runs.Run) int {
	switch {
	case run.Status == runs.StatusError:
		return 2
	case run.Verdict == pipeline.VerdictPassed:
		return 0
	}
	return pipeline.VerdictFailed.ExitCode()
}

func printRun(w io.Writer, run *runs.Run, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}
	if _, err := io.WriteString(w, run.Summary); err != nil {
		return err
	}
	if run.Triage != "" {
		_, err := fmt.Fprintf(w, "triage:\n%s\n", run.Triage)
		return err
	}
	return nil
}
