package strategy

import "github.com/mirrorstack/papersim/internal/domain"

// liquidityRef is the notional at which a market counts as fully liquid
// for edge weighting.
const liquidityRef = 25000.0

// ValueWeighted blends the raw flow edge with market liquidity: the same
// mispricing counts for more in a deep market, where the fair estimate is
// trustworthy, than in a thin one.
type ValueWeighted struct{}

func (ValueWeighted) ID() string   { return "value-weighted" }
func (ValueWeighted) Name() string { return "Value Weighted" }

func (s ValueWeighted) Evaluate(ev domain.TradeEvent, mctx domain.MarketContext) Signal {
	if ev.Side != domain.SideBuy {
		return Signal{}
	}
	if ev.Price < 0.05 || ev.Price > 0.95 {
		return Signal{}
	}
	e := edge(ev, mctx) * s.weight(mctx)
	if e < 0.015 {
		return Signal{Edge: e}
	}
	return Signal{Enter: true, Edge: e}
}

func (ValueWeighted) weight(mctx domain.MarketContext) float64 {
	liquidity := mctx.Liquidity
	if liquidity <= 0 {
		liquidity = mctx.Volume
	}
	w := 0.5 + 0.5*liquidity/liquidityRef
	if w > 1 {
		w = 1
	}
	return w
}

func (s ValueWeighted) Size(edge, available, perTradeCap float64) float64 {
	return scaledStake(edge, available, perTradeCap, DefaultMinOrderSize)
}
