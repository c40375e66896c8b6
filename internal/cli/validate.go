package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hypergraph/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                     `json:"valid"`
	Schemas []string                 `json:"schemas"`
	Errors  []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [schema-path]",
		Short: "Validate a schema file or directory",
		Long: `Load a YAML file, a CUE file or a directory of CUE files and check
the schemas for structural problems: unknown base or end schemas,
inheritance cycles, unknown property types and bad cardinalities.

Without an argument the schema named by --config is validated.

Exit codes:
  0 - Schema is valid
  1 - Schema has structural errors
  2 - Command error (schema not found, parse failure, etc.)

Examples:
  hypergraph validate ./schema.yaml
  hypergraph validate ./schemas --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Schema
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no schema path given and none configured")
	}

	reg, err := schema.Load(path)
	if err != nil {
		details := any(nil)
		var ce *schema.CompileError
		if errors.As(err, &ce) {
			details = map[string]any{"field": ce.Field, "line": ce.Pos.Line()}
		}
		if outErr := formatter.Error(ErrCodeSchemaLoad, err.Error(), details); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	formatter.VerboseLog("Loaded %d schema(s) from %s", reg.Len(), path)

	result := ValidationResult{
		Valid:   true,
		Schemas: reg.SchemaIDs(),
		Errors:  schema.Validate(reg),
	}
	var failure *CLIError
	if len(result.Errors) > 0 {
		result.Valid = false
		failure = &CLIError{
			Code:    ErrCodeSchemaInvalid,
			Message: fmt.Sprintf("%d validation error(s)", len(result.Errors)),
		}
	}

	return formatter.Report(result, failure, func(w io.Writer) {
		if result.Valid {
			fmt.Fprintf(w, "✓ %d schema(s) valid\n", len(result.Schemas))
			return
		}
		for _, e := range result.Errors {
			fmt.Fprintf(w, "✗ %s\n", e.Error())
		}
		fmt.Fprintf(w, "\n%d validation error(s)\n", len(result.Errors))
	})
}
