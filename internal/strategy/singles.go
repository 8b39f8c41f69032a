package strategy

import "github.com/mirrorstack/papersim/internal/domain"

// SinglesOnly takes at most one concurrent position per market: if the
// ledger already holds an open position there, the event is skipped no
// matter how attractive the edge. Mid-range prices only: no longshots,
// no near-certainties.
type SinglesOnly struct{}

func (SinglesOnly) ID() string   { return "singles-only" }
func (SinglesOnly) Name() string { return "Singles Only" }

func (s SinglesOnly) Evaluate(ev domain.TradeEvent, mctx domain.MarketContext) Signal {
	if ev.Side != domain.SideBuy {
		return Signal{}
	}
	if mctx.OpenInMarket > 0 {
		return Signal{}
	}
	if ev.Price < 0.20 || ev.Price > 0.80 {
		return Signal{}
	}
	e := edge(ev, mctx)
	if e < 0.02 {
		return Signal{Edge: e}
	}
	return Signal{Enter: true, Edge: e}
}

func (s SinglesOnly) Size(edge, available, perTradeCap float64) float64 {
	return scaledStake(edge, available, perTradeCap, DefaultMinOrderSize)
}
