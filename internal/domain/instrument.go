package domain

import "fmt"

// InstrumentQuery is a user-supplied instrument descriptor: either an ISIN
// code, or a (symbol, currency, preferred exchange) triple. Immutable input.
type InstrumentQuery struct {
	ISIN              string `yaml:"isin" json:"isin,omitempty"`
	Symbol            string `yaml:"symbol" json:"symbol,omitempty"`
	Currency          string `yaml:"currency" json:"currency,omitempty"`
	PreferredExchange string `yaml:"preferred_exchange" json:"preferred_exchange,omitempty"`
	PrimaryExchange   string `yaml:"primary_exchange" json:"primary_exchange,omitempty"`
}

// Label returns a short human-readable identifier for logs and reports
func (q InstrumentQuery) Label() string {
	if q.ISIN != "" {
		return q.ISIN
	}
	return q.Symbol + "." + q.Currency
}

// Validate checks that the query carries enough to attempt resolution
func (q InstrumentQuery) Validate() error {
	if q.ISIN == "" && (q.Symbol == "" || q.Currency == "") {
		return fmt.Errorf("query %q needs an ISIN or a symbol+currency pair", q.Label())
	}
	return nil
}

// ResolvedContract is the gateway's canonical representation of a tradable
// instrument. Produced once by resolution, never mutated afterwards.
type ResolvedContract struct {
	ContractID int64  `json:"contract_id"`
	Symbol     string `json:"symbol"`
	Currency   string `json:"currency"`
	Exchange   string `json:"exchange"` // Concrete exchange, never "best match" aliases
}

// ResolutionStrategy identifies one step of the resolver's fallback chain
type ResolutionStrategy string

const (
	// StrategyISIN resolves by ISIN alone, no exchange hint
	StrategyISIN ResolutionStrategy = "isin"
	// StrategyPreferredExchange resolves by (symbol, currency, preferred exchange)
	StrategyPreferredExchange ResolutionStrategy = "symbol_preferred_exchange"
	// StrategyPrimaryExchange retries against the instrument's primary exchange
	StrategyPrimaryExchange ResolutionStrategy = "symbol_primary_exchange"
)
