package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/mutation"
	"github.com/stratumdb/stratum/internal/sqlast"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Filter string // restriction over mapped properties
}

// ExplainResult describes how a bulk mutation of an entity would execute.
type ExplainResult struct {
	Entity   string   `json:"entity"`
	Filter   string   `json:"filter,omitempty"`
	Strategy string   `json:"strategy"` // "direct", "staged", or "union"
	Reasons  []string `json:"reasons,omitempty"`
	Tables   []string `json:"tables"`
	Members  []string `json:"members,omitempty"`
	Staging  string   `json:"staging,omitempty"` // staging table DDL
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <mappings-dir> <entity>",
		Short: "Explain how a bulk mutation would execute",
		Long: `Explain the execution plan for a bulk update or delete of an entity.

Shows whether statements run directly against the entity's tables, fan
out over the concrete members of a union hierarchy, or precompute
matched keys into a staging table first, and why. The filter is the
same property restriction bulk mutations accept, e.g. "amount > 100".

Exit codes:
  0 - Plan rendered
  1 - Mapping defects prevent a plan
  2 - Command error (directory not found, unknown entity, bad filter)

Examples:
  stratum explain ./mappings Order
  stratum explain ./mappings Billing --filter "amount > 100"
  stratum explain ./mappings Payment --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "property restriction, e.g. \"amount > 100\"")

	return cmd
}

func runExplain(opts *ExplainOptions, mappingsDir, entityName string, cmd *cobra.Command) error {
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

	entity, ok := reg.Entity(entityName)
	if !ok {
		msg := fmt.Sprintf("unknown entity %q", entityName)
		_ = formatter.Error("E002", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	var where sqlast.Predicate
	if opts.Filter != "" {
		where, err = sqlast.ParseFilter(opts.Filter)
		if err != nil {
			msg := fmt.Sprintf("invalid filter: %v", err)
			_ = formatter.Error("E002", msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	plan, err := mutation.PlanFor(reg, entity, where)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitFailure, "planning mutation", err)
	}

	result := ExplainResult{
		Entity:   entity.Name,
		Filter:   opts.Filter,
		Strategy: strategyName(plan),
		Reasons:  plan.Reasons,
		Tables:   plan.Tables,
	}
	for _, m := range plan.Members {
		result.Members = append(result.Members, m.Name)
	}
	if plan.Staging != nil {
		result.Staging = plan.Staging.CreateSQL()
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	return outputExplainText(formatter, plan, result)
}

func strategyName(plan mutation.Plan) string {
	switch {
	case plan.Union:
		return "union"
	case plan.NeedsStaging:
		return "staged"
	default:
		return "direct"
	}
}

func outputExplainText(formatter *OutputFormatter, plan mutation.Plan, result ExplainResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Entity:   %s\n", result.Entity)
	if result.Filter != "" {
		fmt.Fprintf(w, "Filter:   %s\n", result.Filter)
	}
	fmt.Fprintf(w, "Strategy: %s\n", result.Strategy)

	if len(result.Reasons) > 0 {
		fmt.Fprintln(w, "Reasons:")
		for _, r := range result.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}

	if plan.Union {
		fmt.Fprintln(w, "Members:")
		for i, m := range plan.Members {
			fmt.Fprintf(w, "  - %s (%s)\n", m.Name, plan.Tables[i])
		}
	} else {
		fmt.Fprintln(w, "Tables (constraint order):")
		for i, t := range result.Tables {
			fmt.Fprintf(w, "  %d. %s\n", i+1, t)
		}
	}

	if result.Staging != "" {
		fmt.Fprintln(w, "Staging:")
		fmt.Fprintf(w, "  %s\n", result.Staging)
	}
	return nil
}
