// Package strategy holds the closed set of paper-trading policies the
// engine compares head-to-head. Strategies are pure: evaluating a trade
// event mutates nothing, so every strategy can score the same event
// independently and deterministically.
package strategy

import (
	"sort"

	"github.com/mirrorstack/papersim/internal/domain"
)

// DefaultMinOrderSize is the smallest stake worth simulating. Anything
// smaller is skipped rather than opened as a dust position.
const DefaultMinOrderSize = 5.0

// edgeRef is the edge at which sizing reaches the full per-trade cap.
const edgeRef = 0.15

// Signal is the result of evaluating one trade event.
type Signal struct {
	Enter bool
	Edge  float64 // bounded mispricing estimate; higher means a larger stake
}

// Strategy is one named trading policy.
type Strategy interface {
	ID() string
	Name() string

	// Evaluate decides entry eligibility for a trade event given its
	// market context, returning the edge score used for sizing.
	Evaluate(ev domain.TradeEvent, mctx domain.MarketContext) Signal

	// Size converts an edge score into an invested amount, clamped to
	// min(perTradeCap, available). A result of 0 means skip.
	Size(edge, available, perTradeCap float64) float64
}

// scaledStake is the sizing convention every strategy shares: higher edge
// buys a proportionally larger slice of the per-trade cap, clamped to the
// cap and to available capital, with a dust floor.
func scaledStake(edge, available, perTradeCap, minOrder float64) float64 {
	if edge <= 0 || perTradeCap <= 0 {
		return 0
	}
	frac := edge / edgeRef
	if frac > 1 {
		frac = 1
	}
	stake := perTradeCap * (0.25 + 0.75*frac)
	if stake > available {
		stake = available
	}
	if stake < minOrder {
		return 0
	}
	return stake
}

// All returns the full strategy set in deterministic (ID-sorted) order.
func All() []Strategy {
	set := []Strategy{
		HeavyFavorite{},
		Contrarian{},
		ValueWeighted{},
		SinglesOnly{},
	}
	sort.Slice(set, func(i, j int) bool { return set[i].ID() < set[j].ID() })
	return set
}

// ByID returns the strategy with the given ID, or nil.
func ByID(id string) Strategy {
	for _, s := range All() {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// edge is the flow-weighted fair estimate minus the traded price: positive
// when the market looks underpriced to the buyer.
func edge(ev domain.TradeEvent, mctx domain.MarketContext) float64 {
	if mctx.TradeCount < 2 {
		return 0 // no flow history yet, no opinion
	}
	return mctx.FairPrice - ev.Price
}
