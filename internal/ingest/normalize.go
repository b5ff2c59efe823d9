package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/dealwatch/internal/pricing"
	"github.com/mohammad-safakhou/dealwatch/internal/product"
)

// RawRow is one candidate product as emitted by the external extraction step
// (HTML heuristics or LLM), before any price normalisation.
type RawRow struct {
	ASIN          string   `json:"asin,omitempty"`
	Name          string   `json:"product_name,omitempty"`
	URL           string   `json:"product_url,omitempty"`
	PriceText     string   `json:"price,omitempty"`      // visible price, raw
	ListPriceText string   `json:"list_price,omitempty"` // strike-through price, raw
	DiscountTexts []string `json:"discounts,omitempty"`  // coupon/badge texts, in display order
}

// NormalizeRow reduces a raw row to a merge-ready draft: both price strings
// are parsed, every discount hint becomes a fragment, and the engine folds
// them into one canonical final price.
func NormalizeRow(row RawRow, source string) product.Draft {
	d := product.Draft{
		ASIN:       row.ASIN,
		Name:       row.Name,
		URL:        row.URL,
		SourceFile: source,
	}

	visible := pricing.ParsePrice(row.PriceText)
	list := pricing.ParsePrice(row.ListPriceText)
	if visible.Raw != "" {
		d.Price = &visible
	}

	var fragments []pricing.DiscountFragment
	for _, text := range row.DiscountTexts {
		if frag, ok := pricing.ParseDiscount(text); ok {
			fragments = append(fragments, frag)
		}
	}

	comp := pricing.ComputeFinalPrice(list.Value, visible.Value, fragments)
	d.FinalPrice = comp.FinalPrice
	d.DiscountPercent = comp.DiscountPercent
	return d
}

// JSONRowsParser handles captures that arrive as a JSON array of raw rows,
// the interchange format of the external extraction step. Documents that are
// not JSON rows fail parsing and end up quarantined; plugging a real HTML or
// LLM extractor in means implementing Parser and wiring it instead.
type JSONRowsParser struct{}

func (JSONRowsParser) Parse(_ context.Context, raw []byte, source string) ([]product.Draft, error) {
	var rows []RawRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("document is not a JSON row array: %w", err)
	}
	drafts := make([]product.Draft, 0, len(rows))
	for _, row := range rows {
		drafts = append(drafts, NormalizeRow(row, source))
	}
	return drafts, nil
}
