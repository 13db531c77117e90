package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// UnsetSentinel is the gateway's "no value" marker for numeric fields.
// It must never be interpreted as a real price of zero or otherwise.
const UnsetSentinel = math.MaxFloat64

// MarketSnapshot holds one validated live-market observation for a contract.
// Each numeric field is either present (non-nil) or absent (nil); absent is
// never encoded as zero.
type MarketSnapshot struct {
	ContractID int64            `json:"contract_id"`
	Last       *decimal.Decimal `json:"last,omitempty"`
	Bid        *decimal.Decimal `json:"bid,omitempty"`
	Ask        *decimal.Decimal `json:"ask,omitempty"`
	Close      *decimal.Decimal `json:"close,omitempty"`
	Volume     *decimal.Decimal `json:"volume,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// HasQuote reports whether at least one of last/bid/ask is present
func (s *MarketSnapshot) HasQuote() bool {
	return s.Last != nil || s.Bid != nil || s.Ask != nil
}

// PresentField converts a raw gateway numeric into a present/absent field.
// The not-a-number sentinel, infinities and nil all map to absent.
func PresentField(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	f := *v
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= UnsetSentinel {
		return nil
	}
	d := decimal.NewFromFloat(f)
	return &d
}
