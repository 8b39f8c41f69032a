package domain

import "time"

// Side indicates whether a trade event entered or exited an outcome.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeEvent is a single trade observed on the exchange. Events are the
// engine's source of truth and are never mutated.
type TradeEvent struct {
	ID        string
	MarketID  string
	Outcome   string // outcome label, e.g. "Yes" or a team name
	Side      Side
	Price     float64 // 0–1, probability-like
	Size      float64 // USDC notional
	Timestamp time.Time
}

// Valid reports whether the event carries enough well-formed data to be
// simulated. Malformed events are skipped per-record, never fatal.
func (e TradeEvent) Valid() bool {
	return e.MarketID != "" &&
		e.Outcome != "" &&
		e.Price > 0 && e.Price < 1 &&
		e.Size > 0 &&
		!e.Timestamp.IsZero()
}

// MarketResolution is the eventual outcome of a market. It may arrive long
// after a simulation window ends; unresolved markets stay open and are
// counted, never guessed.
type MarketResolution struct {
	MarketID       string
	WinningOutcome string
	ResolvedAt     time.Time
}

// Market holds read-only metadata used by strategy eligibility predicates.
type Market struct {
	ID        string
	Question  string
	Category  string
	Liquidity float64
	EndDate   time.Time
}

// MarketContext is the per-market view handed to strategies when they
// evaluate a trade event. It is assembled by the simulation fold and is
// read-only from the strategy's perspective.
type MarketContext struct {
	FairPrice    float64 // flow-weighted estimate of the outcome's fair price
	TradeCount   int     // trades seen for this outcome so far
	Volume       float64 // notional traded for this outcome so far
	Category     string
	Liquidity    float64
	OpenInMarket int // open positions this portfolio already holds in the market
}
