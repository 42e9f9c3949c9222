package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/opensource-finance/pensionrules/internal/rules"
)

// historyFile is the YAML layout read by the credit command:
//
//	state: CA
//	entries:
//	  - start_date: 1994-01-01
//	    end_date: 2024-01-01
//	    credited_years: 30
//	  - start_date: 2024-01-01
//	    purchased: true
//	    credited_years: 2
type historyFile struct {
	State   string         `yaml:"state"`
	Entries []historyEntry `yaml:"entries"`
}

type historyEntry struct {
	StartDate     string `yaml:"start_date"`
	EndDate       string `yaml:"end_date"`
	CreditedYears string `yaml:"credited_years"`
	Purchased     bool   `yaml:"purchased"`
}

// CreditOptions holds credit command flags.
type CreditOptions struct {
	State string
}

// NewCreditCommand creates the credit command.
func NewCreditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreditOptions{}

	cmd := &cobra.Command{
		Use:   "credit <history.yaml>",
		Short: "Resolve a service history file into credited years",
		Long: `Resolve a service history into earned, purchased and total credited years.

Entries without an end date accrue service up to --as-of. Purchased service
is capped at the state's maximum. Overlapping entries are rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.report(cmd, runCredit(rootOpts, opts, args[0], cmd))
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "", "state code (overrides the file)")

	return cmd
}

func runCredit(rootOpts *RootOptions, opts *CreditOptions, path string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history file", err)
	}
	var file historyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return WrapExitError(ExitCommandError, "invalid history file", err)
	}
	if opts.State != "" {
		file.State = opts.State
	}

	entries, err := file.toEntries()
	if err != nil {
		return engineError("invalid history file", err)
	}
	formatter.VerboseLog("read %d service entries from %s", len(entries), path)

	table, err := rootOpts.loadTable()
	if err != nil {
		return err
	}
	state, err := domain.ParseStateCode(file.State)
	if err != nil {
		return engineError("invalid state", err)
	}
	rs, err := table.Lookup(state)
	if err != nil {
		return engineError("unknown state", err)
	}
	asOf, err := rootOpts.asOf()
	if err != nil {
		return err
	}

	credit, err := rules.ResolveServiceCreditDetail(entries, asOf, rs.MaxPurchasedServiceYears)
	if err != nil {
		return engineError("failed to resolve service credit", err)
	}

	return formatter.Success(map[string]any{
		"state":         state,
		"asOf":          asOf.Format(time.DateOnly),
		"serviceCredit": credit,
	}, func(w io.Writer) {
		fmt.Fprintf(w, "Service credit for %s as of %s\n\n", rs.Name, asOf.Format(time.DateOnly))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Earned\t%s years\n", credit.EarnedYears.StringFixed(2))
		fmt.Fprintf(tw, "Purchased\t%s years (%s credited, cap %s)\n",
			credit.PurchasedYears.StringFixed(2), credit.PurchasedYearsCredited.StringFixed(2), rs.MaxPurchasedServiceYears)
		fmt.Fprintf(tw, "Total\t%s years\n", credit.TotalYears.StringFixed(2))
		tw.Flush()
	})
}

func (f historyFile) toEntries() ([]domain.ServiceHistoryEntry, error) {
	entries := make([]domain.ServiceHistoryEntry, 0, len(f.Entries))
	for i, e := range f.Entries {
		start, err := time.Parse(time.DateOnly, e.StartDate)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("entries[%d].start_date", i), fmt.Sprintf("expected YYYY-MM-DD, got %q", e.StartDate))
		}
		entry := domain.ServiceHistoryEntry{StartDate: start, Purchased: e.Purchased}

		if e.EndDate != "" {
			end, err := time.Parse(time.DateOnly, e.EndDate)
			if err != nil {
				return nil, domain.NewValidationError(fmt.Sprintf("entries[%d].end_date", i), fmt.Sprintf("expected YYYY-MM-DD, got %q", e.EndDate))
			}
			entry.EndDate = &end
		}
		if e.CreditedYears != "" {
			years, err := decimal.NewFromString(e.CreditedYears)
			if err != nil {
				return nil, domain.NewValidationError(fmt.Sprintf("entries[%d].credited_years", i), fmt.Sprintf("invalid number %q", e.CreditedYears))
			}
			entry.CreditedYears = years
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
