package strategy

import "github.com/mirrorstack/papersim/internal/domain"

// Contrarian buys longshots the crowd has pushed below their flow-implied
// fair price. Few wins, large payouts; the edge threshold is stricter than
// the favorite strategy's because longshot prices are noisier.
type Contrarian struct{}

func (Contrarian) ID() string   { return "contrarian" }
func (Contrarian) Name() string { return "Contrarian" }

func (s Contrarian) Evaluate(ev domain.TradeEvent, mctx domain.MarketContext) Signal {
	if ev.Side != domain.SideBuy {
		return Signal{}
	}
	if ev.Price < 0.03 || ev.Price > 0.35 {
		return Signal{}
	}
	e := edge(ev, mctx)
	if e < 0.03 {
		return Signal{Edge: e}
	}
	return Signal{Enter: true, Edge: e}
}

func (s Contrarian) Size(edge, available, perTradeCap float64) float64 {
	return scaledStake(edge, available, perTradeCap, DefaultMinOrderSize)
}
