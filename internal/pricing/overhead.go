package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"estimator/internal/storage"
)

type FundAllocation struct {
	Fund    string  `json:"fund"`
	Percent float64 `json:"percent"`
	Amount  float64 `json:"amount"`
}

// AllocateOverhead applies the active fund rates of a category (and the
// category-less rates) to subtotal. Rates keep their input order.
func AllocateOverhead(subtotal float64, category string, rates []storage.OverheadRate) ([]FundAllocation, float64, error) {
	base, err := finite("subtotal", subtotal)
	if err != nil {
		return nil, 0, err
	}

	var allocs []FundAllocation
	sum := decimal.Zero

	for _, r := range rates {
		if !r.IsActive || (r.Category != "" && r.Category != category) {
			continue
		}
		if math.IsNaN(r.Percent) || math.IsInf(r.Percent, 0) || r.Percent < 0 {
			return nil, 0, fmt.Errorf("%w: fund %s = %v", ErrInvalidPercent, r.Fund, r.Percent)
		}

		amount := base.Mul(decimal.NewFromFloat(r.Percent)).Div(hundred)
		sum = sum.Add(amount)
		allocs = append(allocs, FundAllocation{Fund: r.Fund, Percent: r.Percent, Amount: amount.InexactFloat64()})
	}

	return allocs, sum.InexactFloat64(), nil
}
