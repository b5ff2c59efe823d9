package product

import (
	"strings"
	"time"

	"github.com/mohammad-safakhou/dealwatch/internal/pricing"
)

// DefaultHistoryCap bounds the per-record snapshot history; oldest entries
// are dropped first.
const DefaultHistoryCap = 5

// Draft is one candidate record handed over by the (external) parsing step.
// Empty fields mean "unknown", not "erase".
type Draft struct {
	ASIN            string                 `json:"asin,omitempty"`
	Name            string                 `json:"product_name,omitempty"`
	URL             string                 `json:"product_url,omitempty"`
	Price           *pricing.PriceFragment `json:"price,omitempty"`
	FinalPrice      *float64               `json:"final_price,omitempty"`
	DiscountPercent *float64               `json:"discount_percent,omitempty"`
	SourceFile      string                 `json:"source_file,omitempty"`
}

// Visible reports whether the draft identifies anything at all. Rows with
// neither a name nor a URL are parser noise and are skipped before merge.
func (d Draft) Visible() bool {
	return strings.TrimSpace(d.Name) != "" || strings.TrimSpace(d.URL) != ""
}

// Snapshot is one compact history entry of the fields tracked over time.
type Snapshot struct {
	TS              time.Time `json:"ts"`
	Price           *float64  `json:"price"`
	DiscountPercent *float64  `json:"discount_percent"`
}

// Record is the merged, durable unit stored in the registry.
type Record struct {
	Key             string                 `json:"key"`
	ASIN            string                 `json:"asin,omitempty"`
	Name            string                 `json:"product_name,omitempty"`
	URL             string                 `json:"product_url,omitempty"`
	Price           *pricing.PriceFragment `json:"price,omitempty"`
	FinalPrice      *float64               `json:"final_price,omitempty"`
	DiscountPercent *float64               `json:"discount_percent,omitempty"`
	SourceFile      string                 `json:"source_file,omitempty"`
	FirstSeen       time.Time              `json:"first_seen"`
	LastSeen        time.Time              `json:"last_seen"`
	History         []Snapshot             `json:"history"`
}

// snapshot extracts the tracked fields of a draft. The second return value
// is false when nothing tracked is present, in which case no history entry
// is appended.
func snapshot(d Draft, now time.Time) (Snapshot, bool) {
	snap := Snapshot{TS: now, DiscountPercent: d.DiscountPercent}
	if d.Price != nil {
		snap.Price = d.Price.Value
	}
	return snap, snap.Price != nil || snap.DiscountPercent != nil
}

// NewRecord creates the first version of a record for a key.
func NewRecord(key string, d Draft, now time.Time) *Record {
	rec := &Record{
		Key:             key,
		ASIN:            d.ASIN,
		Name:            d.Name,
		URL:             d.URL,
		Price:           d.Price,
		FinalPrice:      d.FinalPrice,
		DiscountPercent: d.DiscountPercent,
		SourceFile:      d.SourceFile,
		FirstSeen:       now,
		LastSeen:        now,
	}
	if snap, ok := snapshot(d, now); ok {
		rec.History = []Snapshot{snap}
	}
	return rec
}

// Fold merges a draft into an existing record: non-empty incoming fields
// overwrite, empty ones never erase. A history snapshot is appended only
// when the draft carries at least one tracked field, and the history stays
// capped.
func (r *Record) Fold(d Draft, now time.Time, historyCap int) {
	if v := strings.TrimSpace(d.ASIN); v != "" {
		r.ASIN = v
	}
	if v := strings.TrimSpace(d.Name); v != "" {
		r.Name = v
	}
	if v := strings.TrimSpace(d.URL); v != "" {
		r.URL = v
	}
	if d.Price != nil {
		r.Price = d.Price
	}
	if d.FinalPrice != nil {
		r.FinalPrice = d.FinalPrice
	}
	if d.DiscountPercent != nil {
		r.DiscountPercent = d.DiscountPercent
	}
	if v := strings.TrimSpace(d.SourceFile); v != "" {
		r.SourceFile = v
	}
	r.LastSeen = now

	if snap, ok := snapshot(d, now); ok {
		if historyCap <= 0 {
			historyCap = DefaultHistoryCap
		}
		r.History = append(r.History, snap)
		if len(r.History) > historyCap {
			r.History = r.History[len(r.History)-historyCap:]
		}
	}
}
