// Package cli implements pensionctl, the offline command-line front end to
// the rules engine.
package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/pensionrules/internal/rules"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format    string // "json" | "text"
	RulesFile string // empty uses the embedded rule data
	AsOf      string // YYYY-MM-DD, empty means today
	Verbose   bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for pensionctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pensionctl",
		Short: "pensionctl - state pension rules from the command line",
		Long: `Resolve service credit, check eligibility, calculate benefits and score
retirement readiness against the CA, IN and OH rule sets, or any rule file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				err := NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			_, err := opts.asOf()
			return opts.report(cmd, err)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.RulesFile, "rules", "", "rule set YAML file (default: built-in CA/IN/OH rules)")
	cmd.PersistentFlags().StringVar(&opts.AsOf, "as-of", "", "evaluation date YYYY-MM-DD (default: today)")

	cmd.AddCommand(NewStatesCommand(opts))
	cmd.AddCommand(NewCreditCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCalculateCommand(opts))
	cmd.AddCommand(NewReadinessCommand(opts))

	return cmd
}

// loadTable reads the configured rule file into a strategy table.
func (o *RootOptions) loadTable() (*rules.RuleTable, error) {
	var (
		file *rules.RuleFile
		err  error
	)
	if o.RulesFile == "" {
		file, err = rules.DefaultRuleFile()
	} else {
		file, err = rules.LoadRuleFile(o.RulesFile)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
	}

	table, err := rules.NewRuleTable(file.RuleSets, file.Version)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid rules", err)
	}
	return table, nil
}

func (o *RootOptions) asOf() (time.Time, error) {
	if o.AsOf == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.DateOnly, o.AsOf)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --as-of %q: expected YYYY-MM-DD", o.AsOf))
	}
	return t, nil
}

// report writes a failed command's error in the selected format and passes
// it through for the exit code.
func (o *RootOptions) report(cmd *cobra.Command, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Silent {
		return err
	}
	if err != nil {
		o.formatter(cmd).Error(err)
	}
	return err
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
