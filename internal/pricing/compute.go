package pricing

import (
	"fmt"
	"math"
)

// Computation is the canonical result of folding every discount tier into a
// single final price. Steps records what was applied, in order, and is part
// of the engine's contract.
type Computation struct {
	FinalPrice      *float64 `json:"final_price"`
	DiscountAmount  float64  `json:"discount_amount"`
	DiscountPercent *float64 `json:"discount_percent"`
	DisplayPercent  *int     `json:"display_percent"`
	Steps           []string `json:"steps"`
}

// round2 rounds a currency value to 2 decimal places, half to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// ComputeFinalPrice applies reductions in the fixed tier order:
//  1. the implicit list→visible reduction, when both anchors are present and
//     the list price is higher,
//  2. every percentage fragment, in the order supplied,
//  3. every absolute-amount fragment, in the order supplied.
//
// Each step subtracts from the running price, floored at zero. The discount
// percentage is computed once at the end against the list price when
// available, otherwise against the visible price. With neither anchor
// present the result is empty.
func ComputeFinalPrice(listPrice, visiblePrice *float64, fragments []DiscountFragment) Computation {
	comp := Computation{}

	var running float64
	switch {
	case visiblePrice != nil:
		running = *visiblePrice
	case listPrice != nil:
		running = *listPrice
	default:
		return comp
	}

	if listPrice != nil && visiblePrice != nil && *listPrice > *visiblePrice {
		cut := *listPrice - *visiblePrice
		comp.DiscountAmount += cut
		comp.Steps = append(comp.Steps, fmt.Sprintf("list→visible: %.2f → %.2f (-%.2f)", *listPrice, *visiblePrice, cut))
	}

	for _, f := range fragments {
		if f.Kind != Percent {
			continue
		}
		before := running
		cut := running * f.Value / 100.0
		running = math.Max(running-cut, 0)
		comp.DiscountAmount += before - running
		comp.Steps = append(comp.Steps, fmt.Sprintf("percent %.4g%%: %.2f → %.2f (-%.2f)", f.Value, before, running, before-running))
	}

	for _, f := range fragments {
		if f.Kind != Absolute {
			continue
		}
		before := running
		running = math.Max(running-f.Value, 0)
		comp.DiscountAmount += before - running
		cur := ""
		if f.CurrencyHint != nil {
			cur = " " + *f.CurrencyHint
		}
		comp.Steps = append(comp.Steps, fmt.Sprintf("absolute %.2f%s: %.2f → %.2f (-%.2f)", f.Value, cur, before, running, before-running))
	}

	final := round2(running)
	comp.FinalPrice = &final
	rawAmount := comp.DiscountAmount
	comp.DiscountAmount = round2(rawAmount)

	base := visiblePrice
	if listPrice != nil {
		base = listPrice
	}
	if base != nil && *base > 0 {
		// percent derives from the unrounded amount, then is itself rounded,
		// so the stored float carries no residue from the rounded amount
		pct := round2(rawAmount / *base * 100.0)
		comp.DiscountPercent = &pct
		disp := int(math.Round(pct))
		comp.DisplayPercent = &disp
	}

	return comp
}
