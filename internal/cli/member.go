package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
)

// MemberOptions are the member fact flags shared by validate, calculate and
// readiness.
type MemberOptions struct {
	State       string
	BenefitType string
	Age         int
	Service     string
	Salary      string
	Rate        string
}

func (o *MemberOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.State, "state", "", "state code (required)")
	cmd.Flags().StringVar(&o.BenefitType, "type", string(domain.BenefitService), "benefit type (service|disability|early)")
	cmd.Flags().IntVar(&o.Age, "age", 0, "member age in whole years")
	cmd.Flags().StringVar(&o.Service, "service", "0", "total credited service years")
	cmd.Flags().StringVar(&o.Salary, "salary", "0", "final average salary")
	cmd.Flags().StringVar(&o.Rate, "rate", "0", "member contribution rate, e.g. 0.08")
	_ = cmd.MarkFlagRequired("state")
}

// facts parses the flags and looks up the member's rule set.
func (o *MemberOptions) facts(table *rules.RuleTable) (domain.MemberFacts, *domain.StateRuleSet, error) {
	state, err := domain.ParseStateCode(o.State)
	if err != nil {
		return domain.MemberFacts{}, nil, engineError("invalid state", err)
	}
	bt, err := domain.ParseBenefitType(o.BenefitType)
	if err != nil {
		return domain.MemberFacts{}, nil, engineError("invalid benefit type", err)
	}
	service, err := parseDecimalFlag("service", o.Service)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	salary, err := parseDecimalFlag("salary", o.Salary)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	rate, err := parseDecimalFlag("rate", o.Rate)
	if err != nil {
		return domain.MemberFacts{}, nil, err
	}
	rs, err := table.Lookup(state)
	if err != nil {
		return domain.MemberFacts{}, nil, engineError("unknown state", err)
	}

	return domain.MemberFacts{
		Age:                o.Age,
		TotalServiceYears:  service,
		FinalAverageSalary: salary,
		ContributionRate:   rate,
		State:              state,
		BenefitType:        bt,
	}, rs, nil
}

func parseDecimalFlag(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, NewExitError(ExitCommandError, fmt.Sprintf("invalid --%s %q: expected a number", name, raw))
	}
	return d, nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MemberOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a member's eligibility",
		Long: `Check a member against the state's age, vesting, service and contribution
rules. Every failing check is reported in order.

Exits 1 when the member is not eligible.`,
		Example: `  pensionctl validate --state CA --age 64 --service 30 --salary 75000 --rate 0.08`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runValidate(rootOpts, opts, cmd))
		},
	}
	opts.register(cmd)

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *MemberOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	table, err := rootOpts.loadTable()
	if err != nil {
		return err
	}
	facts, rs, err := opts.facts(table)
	if err != nil {
		return err
	}

	verdict, err := rules.Validate(facts, rs)
	if err != nil {
		return engineError("validation failed", err)
	}
	formatter.VerboseLog("validated %s %s member against rules version %s", facts.State, facts.BenefitType, table.Version())

	err = formatter.Success(verdict, func(w io.Writer) {
		if verdict.Eligible {
			fmt.Fprintf(w, "ELIGIBLE for %s retirement under %s\n", facts.BenefitType, rs.Name)
			return
		}
		fmt.Fprintf(w, "NOT ELIGIBLE for %s retirement under %s\n", facts.BenefitType, rs.Name)
		for i, reason := range verdict.Reasons {
			fmt.Fprintf(w, "  - [%s] %s\n", verdict.FailedChecks[i], reason)
		}
	})
	if err != nil {
		return err
	}

	if !verdict.Eligible {
		return &ExitError{Code: ExitFailure, Message: "member is not eligible", Silent: true}
	}
	return nil
}

// CalculateOptions holds calculate command flags.
type CalculateOptions struct {
	MemberOptions
	COLAYears int
}

// NewCalculateCommand creates the calculate command.
func NewCalculateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalculateOptions{}

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate a member's annual and monthly benefit",
		Long: `Calculate the benefit as final average salary x service years x multiplier,
less any early retirement reduction.

Ineligible members still get a result, marked advisory.`,
		Example: `  pensionctl calculate --state CA --age 64 --service 30 --salary 75000 --rate 0.08
  pensionctl calculate --state OH --type early --age 58 --service 25 --salary 60000 --rate 0.1 --cola-years 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runCalculate(rootOpts, opts, cmd))
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&opts.COLAYears, "cola-years", 0, "project the benefit with cost-of-living adjustments for this many years")

	return cmd
}

func runCalculate(rootOpts *RootOptions, opts *CalculateOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	table, err := rootOpts.loadTable()
	if err != nil {
		return err
	}
	facts, rs, err := opts.facts(table)
	if err != nil {
		return err
	}

	result, err := rules.Calculate(facts, rs)
	if err != nil {
		return engineError("calculation failed", err)
	}
	projection, err := rules.ProjectCOLA(result, rs, opts.COLAYears)
	if err != nil {
		return engineError("COLA projection failed", err)
	}

	data := map[string]any{"benefit": result}
	if len(projection) > 0 {
		data["colaProjection"] = projection
	}

	return formatter.Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s benefit\n\n", rs.Name, result.BenefitType)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Annual\t%s\n", formatMoney(result.AnnualAmount))
		fmt.Fprintf(tw, "Monthly\t%s\n", formatMoney(result.MonthlyAmount))
		fmt.Fprintf(tw, "Multiplier\t%s\n", formatPercent(result.MultiplierApplied))
		if result.ReductionApplied.IsPositive() {
			fmt.Fprintf(tw, "Early reduction\t%s (unreduced %s)\n", formatPercent(result.ReductionApplied), formatMoney(result.BaseAnnualAmount))
		}
		fmt.Fprintf(tw, "Salary basis\t%d-year final average\n", result.CalculationBasis)
		tw.Flush()

		if result.Advisory {
			fmt.Fprintln(w, "\nADVISORY: member is not eligible; amounts are a preview")
			for _, reason := range result.AdvisoryReasons {
				fmt.Fprintf(w, "  - %s\n", reason)
			}
		}

		if len(projection) > 0 {
			fmt.Fprintf(w, "\nCOLA projection at %s per year\n", formatPercent(rs.COLARate))
			tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "YEAR\tANNUAL\tMONTHLY")
			for _, y := range projection {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", y.Year, formatMoney(y.AnnualAmount), formatMoney(y.MonthlyAmount))
			}
			tw.Flush()
		}
	})
}

// NewReadinessCommand creates the readiness command.
func NewReadinessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MemberOptions{}

	cmd := &cobra.Command{
		Use:   "readiness",
		Short: "Score a member's retirement readiness from 0 to 100",
		Long: `Score how close a member is to retirement: age proximity and service
proximity count 40 points each, contribution health 20.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runReadiness(rootOpts, opts, cmd))
		},
	}
	opts.register(cmd)

	return cmd
}

func runReadiness(rootOpts *RootOptions, opts *MemberOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	table, err := rootOpts.loadTable()
	if err != nil {
		return err
	}
	facts, rs, err := opts.facts(table)
	if err != nil {
		return err
	}

	verdict, err := rules.Validate(facts, rs)
	if err != nil {
		return engineError("validation failed", err)
	}
	score, err := rules.Score(facts, rs, verdict)
	if err != nil {
		return engineError("scoring failed", err)
	}

	return formatter.Success(score, func(w io.Writer) {
		fmt.Fprintf(w, "Readiness score: %d/100\n\n", score.Score)
		components := make([]string, 0, len(score.ComponentBreakdown))
		for name := range score.ComponentBreakdown {
			components = append(components, name)
		}
		sort.Strings(components)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, name := range components {
			fmt.Fprintf(tw, "%s\t%s\n", name, score.ComponentBreakdown[name].StringFixed(2))
		}
		tw.Flush()
		if score.Eligible {
			fmt.Fprintln(w, "\nMember is eligible now.")
		}
	})
}
