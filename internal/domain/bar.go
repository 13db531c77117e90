package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV record for a given bar size
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Window is one half-open [Start, End) request window, except the final
// window of a partition, which closes at the requested end date.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hole marks a sub-window that yielded no bars. Failed distinguishes an
// outright request failure from a legitimately empty response; Benign is
// set when every day in the hole is a non-trading day for the contract's
// exchange.
type Hole struct {
	Window
	Failed bool `json:"failed"`
	Benign bool `json:"benign"`
}

// BarSeries is an ordered, materialized sequence of bars, ascending by
// time, with any holes recorded alongside. It is a value, not a stream:
// the full series exists before it is handed to the caller.
type BarSeries struct {
	ContractID int64     `json:"contract_id"`
	BarSize    string    `json:"bar_size"`
	Requested  Window    `json:"requested"`
	Bars       []Bar     `json:"bars"`
	Holes      []Hole    `json:"holes,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Append adds bars in order, dropping any bar whose timestamp duplicates
// the last appended one (sub-window boundary overlap) and keeping the
// earlier occurrence.
func (s *BarSeries) Append(bars []Bar) {
	for _, b := range bars {
		if n := len(s.Bars); n > 0 && !b.Time.After(s.Bars[n-1].Time) {
			continue
		}
		s.Bars = append(s.Bars, b)
	}
}

// Covered returns the date range actually covered by the fetched bars
func (s *BarSeries) Covered() (Window, bool) {
	if len(s.Bars) == 0 {
		return Window{}, false
	}
	return Window{Start: s.Bars[0].Time, End: s.Bars[len(s.Bars)-1].Time}, true
}

// PartitionWindows splits [start, end] into consecutive chronological
// sub-windows no larger than maxSpan. All windows are half-open except the
// last, which is closed at end. A non-positive maxSpan yields one window.
func PartitionWindows(start, end time.Time, maxSpan time.Duration) []Window {
	if !end.After(start) {
		return nil
	}
	if maxSpan <= 0 || end.Sub(start) <= maxSpan {
		return []Window{{Start: start, End: end}}
	}

	var windows []Window
	for cursor := start; cursor.Before(end); {
		next := cursor.Add(maxSpan)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next
	}
	return windows
}
