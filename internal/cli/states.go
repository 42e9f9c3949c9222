package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
)

// NewStatesCommand creates the states command group.
func NewStatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "states",
		Short: "Inspect loaded state rule sets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runStatesList(rootOpts, cmd))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <code>",
		Short: "Show one state's rule set and benefit strategies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runStatesShow(rootOpts, args[0], cmd))
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Compare contribution terms across states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runStatesSummary(rootOpts, cmd))
		},
	})

	return cmd
}

func runStatesList(opts *RootOptions, cmd *cobra.Command) error {
	table, err := opts.loadTable()
	if err != nil {
		return err
	}
	sets := table.RuleSets()

	return opts.formatter(cmd).Success(map[string]any{
		"version":  table.Version(),
		"ruleSets": sets,
	}, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tNAME\tMULTIPLIER\tRETIREMENT AGE\tMIN SERVICE\tCONTRIBUTION")
		for _, rs := range sets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d (early %d)\t%s\t%s-%s\n",
				rs.State, rs.Name, formatPercent(rs.Multiplier),
				rs.MinRetirementAge, rs.EarlyRetirementAge, rs.MinServiceYears,
				formatPercent(rs.MinContributionRate), formatPercent(rs.MaxContributionRate),
			)
		}
		tw.Flush()
		fmt.Fprintf(w, "\nrule set version %s\n", table.Version())
	})
}

func runStatesShow(opts *RootOptions, code string, cmd *cobra.Command) error {
	table, err := opts.loadTable()
	if err != nil {
		return err
	}
	state, err := domain.ParseStateCode(code)
	if err != nil {
		return engineError("invalid state", err)
	}
	rs, err := table.Lookup(state)
	if err != nil {
		return engineError("unknown state", err)
	}

	strategies := make([]domain.BenefitRule, 0, len(domain.BenefitTypes))
	for _, bt := range domain.BenefitTypes {
		strategy, err := table.Strategy(state, bt)
		if err != nil {
			return engineError("invalid rule set", err)
		}
		strategies = append(strategies, strategy)
	}

	return opts.formatter(cmd).Success(map[string]any{
		"ruleSet":    rs,
		"strategies": strategies,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%s)\n\n", rs.Name, rs.State)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Vesting years\t%s\n", rs.VestingYears)
		fmt.Fprintf(tw, "Contribution rate\t%s-%s (employer %s)\n",
			formatPercent(rs.MinContributionRate), formatPercent(rs.MaxContributionRate), formatPercent(rs.EmployerContributionRate))
		fmt.Fprintf(tw, "Final average salary\t%d years\n", rs.FinalAverageSalaryPeriodYears)
		fmt.Fprintf(tw, "Max purchased service\t%s years\n", rs.MaxPurchasedServiceYears)
		fmt.Fprintf(tw, "COLA\t%s\n", formatPercent(rs.COLARate))
		fmt.Fprintf(tw, "Spouse approval\t%t\n", rs.RequiresSpouseApproval)
		fmt.Fprintf(tw, "Medical exam\t%t\n", rs.RequiresMedicalExam)
		fmt.Fprintf(tw, "Report due\t%s\n", rs.ReportDueDate)
		tw.Flush()

		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BENEFIT\tMULTIPLIER\tMIN AGE\tMIN SERVICE\tREDUCED BELOW\tPENALTY/YEAR")
		for _, s := range strategies {
			minAge := "-"
			if s.MinAge > 0 {
				minAge = fmt.Sprint(s.MinAge)
			}
			reduced := "-"
			if s.ReduceBelowAge > 0 {
				reduced = fmt.Sprint(s.ReduceBelowAge)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.BenefitType, formatPercent(s.Multiplier), minAge, s.MinServiceYears, reduced, formatPercent(s.PenaltyPerYear))
		}
		tw.Flush()
	})
}

func runStatesSummary(opts *RootOptions, cmd *cobra.Command) error {
	table, err := opts.loadTable()
	if err != nil {
		return err
	}
	summary := rules.SummarizeStates(table.RuleSets())

	return opts.formatter(cmd).Success(summary, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tEMPLOYEE MAX\tEMPLOYER\tMULTIPLIER\tRETIREMENT AGE\tCOLA")
		for _, s := range summary.States {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				s.State, formatPercent(s.MaxContributionRate), formatPercent(s.EmployerContributionRate),
				formatPercent(s.Multiplier), s.MinRetirementAge, formatPercent(s.COLARate))
		}
		fmt.Fprintf(tw, "average\t%s\t%s\t%s\t%s\t\n",
			formatPercent(summary.AverageMaxEmployeeRate), formatPercent(summary.AverageEmployerRate),
			formatPercent(summary.AverageMultiplier), summary.AverageMinRetirementAge)
		tw.Flush()
	})
}
