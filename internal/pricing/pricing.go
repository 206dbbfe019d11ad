// Package pricing turns materialized resource lines into a priced breakdown.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"estimator/internal/bom"
	"estimator/internal/storage"
)

var (
	ErrInvalidPercent = errors.New("invalid percent")
	ErrNonFinite      = errors.New("non-finite amount")
)

var hundred = decimal.NewFromInt(100)

type Input struct {
	Lines []bom.Line
	// OverheadCost is allocated by the caller, usually with AllocateOverhead.
	OverheadCost    float64
	Overhead        []FundAllocation
	MarginPercent   float64
	DiscountPercent float64
	TaxPercent      float64
	Currency        string
}

type LineCost struct {
	ItemID       int64                `json:"item_id"`
	ResourceCode string               `json:"resource_code"`
	Type         storage.ResourceType `json:"type"`
	Quantity     float64              `json:"quantity"`
	UnitCost     float64              `json:"unit_cost"`
	Cost         float64              `json:"cost"`
}

// Breakdown keeps every intermediate of the pipeline.
type Breakdown struct {
	Currency            string           `json:"currency"`
	Lines               []LineCost       `json:"lines"`
	MaterialsCost       float64          `json:"materials_cost"`
	LaborCost           float64          `json:"labor_cost"`
	OverheadCost        float64          `json:"overhead_cost"`
	Overhead            []FundAllocation `json:"overhead,omitempty"`
	TotalCost           float64          `json:"total_cost"`
	MarginPercent       float64          `json:"margin_percent"`
	MarginAmount        float64          `json:"margin_amount"`
	PriceBeforeDiscount float64          `json:"price_before_discount"`
	DiscountPercent     float64          `json:"discount_percent"`
	DiscountAmount      float64          `json:"discount_amount"`
	PriceAfterDiscount  float64          `json:"price_after_discount"`
	TaxPercent          float64          `json:"tax_percent"`
	TaxAmount           float64          `json:"tax_amount"`
	FinalPrice          float64          `json:"final_price"`
}

func finite(name string, v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNonFinite, name)
	}
	return decimal.NewFromFloat(v), nil
}

func percent(name string, v float64, max float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || (max > 0 && v > max) {
		return decimal.Zero, fmt.Errorf("%w: %s = %v", ErrInvalidPercent, name, v)
	}
	return decimal.NewFromFloat(v), nil
}

// Compute runs materials/labor -> overhead -> margin -> discount -> tax.
// Amounts are summed in decimal and are not rounded to currency units.
func Compute(in Input) (*Breakdown, error) {
	margin, err := percent("margin_percent", in.MarginPercent, 0)
	if err != nil {
		return nil, err
	}
	discount, err := percent("discount_percent", in.DiscountPercent, 100)
	if err != nil {
		return nil, err
	}
	tax, err := percent("tax_percent", in.TaxPercent, 0)
	if err != nil {
		return nil, err
	}
	overhead, err := finite("overhead_cost", in.OverheadCost)
	if err != nil {
		return nil, err
	}
	if overhead.IsNegative() {
		return nil, fmt.Errorf("%w: overhead_cost is negative", ErrNonFinite)
	}

	b := &Breakdown{
		Currency:        in.Currency,
		Lines:           make([]LineCost, 0, len(in.Lines)),
		Overhead:        in.Overhead,
		MarginPercent:   in.MarginPercent,
		DiscountPercent: in.DiscountPercent,
		TaxPercent:      in.TaxPercent,
	}

	materials, labor := decimal.Zero, decimal.Zero
	for _, l := range in.Lines {
		qty, err := finite("quantity of "+l.ResourceCode, l.Quantity)
		if err != nil {
			return nil, err
		}
		unit, err := finite("unit cost of "+l.ResourceCode, l.UnitCost)
		if err != nil {
			return nil, err
		}
		cost := qty.Mul(unit)

		switch l.Type {
		case storage.ResourceMaterial:
			materials = materials.Add(cost)
		case storage.ResourceLabor:
			labor = labor.Add(cost)
		default:
			return nil, fmt.Errorf("pricing: line %d has unknown resource type %q", l.ItemID, l.Type)
		}

		b.Lines = append(b.Lines, LineCost{
			ItemID:       l.ItemID,
			ResourceCode: l.ResourceCode,
			Type:         l.Type,
			Quantity:     l.Quantity,
			UnitCost:     l.UnitCost,
			Cost:         cost.InexactFloat64(),
		})
	}

	total := materials.Add(labor).Add(overhead)
	marginAmount := total.Mul(margin).Div(hundred)
	beforeDiscount := total.Add(marginAmount)
	discountAmount := beforeDiscount.Mul(discount).Div(hundred)
	afterDiscount := beforeDiscount.Sub(discountAmount)
	taxAmount := afterDiscount.Mul(tax).Div(hundred)
	final := afterDiscount.Add(taxAmount)

	b.MaterialsCost = materials.InexactFloat64()
	b.LaborCost = labor.InexactFloat64()
	b.OverheadCost = overhead.InexactFloat64()
	b.TotalCost = total.InexactFloat64()
	b.MarginAmount = marginAmount.InexactFloat64()
	b.PriceBeforeDiscount = beforeDiscount.InexactFloat64()
	b.DiscountAmount = discountAmount.InexactFloat64()
	b.PriceAfterDiscount = afterDiscount.InexactFloat64()
	b.TaxAmount = taxAmount.InexactFloat64()
	b.FinalPrice = final.InexactFloat64()

	return b, nil
}

// Subtotal is materials plus labor, the base overhead is allocated on.
func Subtotal(lines []bom.Line) float64 {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(l.UnitCost)))
	}
	return sum.InexactFloat64()
}
