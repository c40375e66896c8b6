package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SchemaDir string
	Journal   string
}

// RunResult is the session trace of one scenario run.
type RunResult struct {
	Scenario  string                 `json:"scenario"`
	Pass      bool                   `json:"pass"`
	Sessions  []harness.TraceSession `json:"sessions"`
	Journaled bool                   `json:"journaled"`
	Errors    []string               `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario and print its sessions",
		Long: `Run a single scenario against a fresh store and print every completed
session: its correlation id, whether it aborted, its events and its
diagnostics.

With --journal (or journal.path in --config) committed sessions are
appended to the SQLite journal, so they can be replayed later.

Examples:
  hypergraph run ./scenarios/cascade.yaml
  hypergraph run ./scenarios/cascade.yaml --journal ./library.db
  hypergraph run ./scenarios/cascade.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SchemaDir, "schema-dir", "", "base directory for the scenario schema (default: scenario directory)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "SQLite journal to append committed sessions to")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Journal != "" {
		cfg.Journal.Path = opts.Journal
	}
	logger := opts.logger(cmd, cfg)

	base := opts.SchemaDir
	if base == "" {
		base = filepath.Dir(path)
	}
	scenario, err := harness.LoadScenarioWithBasePath(path, base)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var hooks []harness.StoreHook
	j, err := cfg.OpenJournal()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	if j != nil {
		defer j.Close()
		hooks = append(hooks, func(s *domain.Store) { j.Attach(context.Background(), s) })
	}

	result, err := harness.RunWithLogger(scenario, logger, hooks...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := RunResult{
		Scenario:  scenario.Name,
		Pass:      result.Pass,
		Sessions:  result.Trace,
		Journaled: j != nil,
		Errors:    result.Errors,
	}
	var failure *CLIError
	if !result.Pass {
		failure = &CLIError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("scenario %s failed", scenario.Name)}
	}
	return opts.formatter(cmd).Report(out, failure, func(w io.Writer) {
		writeRunText(w, out, opts.Verbose)
	})
}

func writeRunText(w io.Writer, out RunResult, verbose bool) {
	fmt.Fprintf(w, "Scenario: %s\n\n", out.Scenario)
	for _, ts := range out.Sessions {
		status := "✓"
		if ts.Aborted {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s  %d event(s)  version %d\n", status, ts.CorrelationID, len(ts.Events), ts.MaxVersion)
		if verbose {
			for _, e := range ts.Events {
				fmt.Fprintf(w, "    %v %v\n", e["kind"], e["id"])
			}
		}
		for _, msg := range ts.Messages {
			fmt.Fprintf(w, "    %s\n", msg)
		}
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "\n%s", e)
	}
	if len(out.Errors) > 0 {
		fmt.Fprintln(w)
	}
	if out.Journaled {
		fmt.Fprintln(w, "\nCommitted sessions journaled.")
	}
}
