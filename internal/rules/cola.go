package rules

import (
	"fmt"

	"github.com/opensource-finance/pensionrules/internal/domain"
	"github.com/shopspring/decimal"
)

// ProjectCOLA projects a benefit forward with the state's compounding
// cost-of-living adjustment. Year 1 is the unadjusted annual amount.
func ProjectCOLA(result domain.BenefitResult, rs *domain.StateRuleSet, years int) ([]domain.COLAProjectionYear, error) {
	if rs == nil {
		return nil, domain.NewConfigurationError(result.State, "", "no rule set loaded")
	}
	if years < 0 {
		return nil, domain.NewValidationError("years", fmt.Sprintf("must not be negative, got %d", years))
	}

	step := one.Add(rs.COLARate)
	factor := decimal.NewFromInt(1)
	projection := make([]domain.COLAProjectionYear, 0, years)

	for y := 1; y <= years; y++ {
		annual := round2(result.AnnualAmount.Mul(factor))
		projection = append(projection, domain.COLAProjectionYear{
			Year:          y,
			AnnualAmount:  annual,
			MonthlyAmount: round2(annual.Div(twelve)),
		})
		factor = factor.Mul(step)
	}

	return projection, nil
}
