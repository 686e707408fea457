package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/meta"
	"github.com/stratumdb/stratum/internal/mutation"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Staging bool // include staging table definitions
}

// SchemaResult holds the rendered DDL.
type SchemaResult struct {
	Statements []string `json:"statements"`
	Staging    []string `json:"staging,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <mappings-dir>",
		Short: "Render the schema derived from the mappings",
		Long: `Render CREATE TABLE statements for every mapped table.

Tables appear in constraint order, referenced tables before referencing
ones, so the statements can be executed top to bottom. Collection side
tables are included. With --staging, the staging tables bulk mutations
use to precompute matched keys are appended.

Exit codes:
  0 - Schema rendered
  1 - Mapping defects prevent a schema
  2 - Command error (directory not found, nothing to load)

Examples:
  stratum schema ./mappings
  stratum schema ./mappings --staging
  stratum schema ./mappings --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Staging, "staging", false, "include staging table definitions")

	return cmd
}

func runSchema(opts *SchemaOptions, mappingsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := loadRegistry(formatter, mappingsDir)
	if err != nil {
		return err
	}

	result := SchemaResult{Statements: reg.SchemaSQL()}
	if opts.Staging {
		staging, err := stagingSQL(reg)
		if err != nil {
			_ = formatter.Error("E001", err.Error(), nil)
			return WrapExitError(ExitFailure, "rendering staging tables", err)
		}
		result.Staging = staging
	}

	formatter.VerboseLog("Rendered %d table(s)", len(result.Statements))

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, stmt := range result.Statements {
		fmt.Fprintf(formatter.Writer, "%s;\n\n", stmt)
	}
	for _, stmt := range result.Staging {
		fmt.Fprintf(formatter.Writer, "%s;\n\n", stmt)
	}
	return nil
}

// loadRegistry builds the registry for commands that need a valid one
// before they can do their work. Load failures become CLI errors with the
// same exit split validate uses.
func loadRegistry(formatter *OutputFormatter, mappingsDir string) (*meta.Registry, error) {
	reg, errs := meta.LoadRegistry(mappingsDir, meta.LoadModeFailFast)
	if reg != nil {
		return reg, nil
	}
	if dirErr := directoryIssue(errs); dirErr != nil {
		return nil, outputCommandError(formatter, dirErr.Code, dirErr.Message)
	}
	issue := toIssues(errs)[0]
	_ = formatter.Error(issue.Code, issue.Message, nil)
	return nil, NewExitError(ExitFailure, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
}

// stagingSQL renders the staging table of every hierarchy that can be
// bulk-mutated through one, deduplicated by root table. Union hierarchies
// never stage and are skipped.
func stagingSQL(reg *meta.Registry) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range reg.Entities() {
		if e.Inheritance == meta.InheritanceUnion || e.RootTable() == nil {
			continue
		}
		tt, err := mutation.StagingTableFor(e)
		if err != nil {
			return nil, err
		}
		if seen[tt.Name] {
			continue
		}
		seen[tt.Name] = true
		out = append(out, tt.CreateSQL())
	}
	return out, nil
}
