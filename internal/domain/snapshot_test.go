package domain

import (
	"math"
	"testing"
)

func TestPresentField(t *testing.T) {
	t.Run("Nil Is Absent", func(t *testing.T) {
		if PresentField(nil) != nil {
			t.Error("nil input should be absent")
		}
	})

	t.Run("NaN Sentinel Is Absent", func(t *testing.T) {
		v := math.NaN()
		if PresentField(&v) != nil {
			t.Error("NaN must never become a present field")
		}
	})

	t.Run("Unset Sentinel Is Absent", func(t *testing.T) {
		v := UnsetSentinel
		if PresentField(&v) != nil {
			t.Error("unset sentinel must never become a present field")
		}
	})

	t.Run("Zero Is Present", func(t *testing.T) {
		// A genuine zero from the gateway is a value, not an absence marker.
		v := 0.0
		d := PresentField(&v)
		if d == nil {
			t.Fatal("zero should be present")
		}
		if !d.IsZero() {
			t.Errorf("expected 0, got %s", d)
		}
	})

	t.Run("Real Price", func(t *testing.T) {
		v := 57.82
		d := PresentField(&v)
		if d == nil {
			t.Fatal("real price should be present")
		}
		if d.String() != "57.82" {
			t.Errorf("expected 57.82, got %s", d)
		}
	})
}

func TestMarketSnapshot_HasQuote(t *testing.T) {
	bid := 10.5
	snap := MarketSnapshot{}
	if snap.HasQuote() {
		t.Error("empty snapshot has no quote")
	}

	snap.Bid = PresentField(&bid)
	if !snap.HasQuote() {
		t.Error("bid alone is a valid quote")
	}

	// Close and volume alone do not count as a live quote.
	closing := 9.9
	snap2 := MarketSnapshot{Close: PresentField(&closing)}
	if snap2.HasQuote() {
		t.Error("close without last/bid/ask is not a quote")
	}
}
