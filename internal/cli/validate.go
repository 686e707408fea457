package cli

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/meta"
)

// ValidationIssue is one defect reported by validate. Load defects carry a
// file, registry defects carry an entity and field.
type ValidationIssue struct {
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Entities int               `json:"entities,omitempty"`
	Tables   int               `json:"tables,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <mappings-dir>",
		Short: "Validate mapping documents",
		Long: `Validate entity mapping documents without opening a database.

Checks document structure against the mapping schema, then builds the
registry to surface semantic defects: dangling references, table ownership
conflicts, identifier problems, inheritance mismatches.

Exit codes:
  0 - All mappings valid
  1 - One or more mapping defects found
  2 - Command error (directory not found, nothing to load)

Examples:
  stratum validate ./mappings
  stratum validate ./mappings --format json
  stratum validate ./mappings --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, mappingsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	reg, errs := meta.LoadRegistry(mappingsDir, meta.LoadModeCollectAll)
	if reg == nil {
		if dirErr := directoryIssue(errs); dirErr != nil {
			return outputCommandError(formatter, dirErr.Code, dirErr.Message)
		}
		return outputValidationIssues(formatter, toIssues(errs))
	}

	for _, e := range reg.Entities() {
		formatter.VerboseLog("Validated entity: %s", e.Name)
	}

	return outputValidateSuccess(formatter, reg)
}

// directoryIssue reports whether the load failed before any mapping file
// was read: missing directory, scan failure, or an empty directory. Those
// are command errors rather than mapping defects.
func directoryIssue(errs []error) *meta.LoadError {
	if len(errs) != 1 {
		return nil
	}
	var loadErr *meta.LoadError
	if !errors.As(errs[0], &loadErr) {
		return nil
	}
	switch loadErr.Code {
	case meta.ErrCodeNotFound, meta.ErrCodeScanError, meta.ErrCodeNoFiles:
		return loadErr
	}
	return nil
}

// toIssues flattens load and registry errors into report form.
func toIssues(errs []error) []ValidationIssue {
	issues := make([]ValidationIssue, 0, len(errs))
	for _, err := range errs {
		var loadErr *meta.LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{
				Code:    loadErr.Code,
				File:    loadErr.File,
				Message: loadErr.Message,
			})
			continue
		}
		var vErr meta.ValidationError
		if errors.As(err, &vErr) {
			issues = append(issues, ValidationIssue{
				Code:    vErr.Code,
				Entity:  vErr.Entity,
				Field:   vErr.Field,
				Message: vErr.Message,
			})
			continue
		}
		issues = append(issues, ValidationIssue{Code: "E001", Message: err.Error()})
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, reg *meta.Registry) error {
	entities := len(reg.Entities())
	tables := len(reg.AllTables())

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:    true,
			Entities: entities,
			Tables:   tables,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ All mappings valid (%d entities, %d tables)\n", entities, tables)
	return nil
}

// outputCommandError outputs a directory-level error.
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs mapping defects.
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: issues,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		switch {
		case issue.File != "":
			fmt.Fprintf(formatter.Writer, "%s\n", issue.File)
		case issue.Entity != "":
			fmt.Fprintf(formatter.Writer, "entity %s (%s)\n", issue.Entity, issue.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}
