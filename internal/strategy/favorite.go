package strategy

import "github.com/mirrorstack/papersim/internal/domain"

// HeavyFavorite only backs outcomes the market already prices as strong
// favorites, taking the small remaining edge when flow says the favorite
// is still underpriced. Low payout per trade, high expected win rate.
type HeavyFavorite struct{}

func (HeavyFavorite) ID() string   { return "heavy-favorite" }
func (HeavyFavorite) Name() string { return "Heavy Favorites" }

func (s HeavyFavorite) Evaluate(ev domain.TradeEvent, mctx domain.MarketContext) Signal {
	if ev.Side != domain.SideBuy {
		return Signal{}
	}
	if ev.Price < 0.70 || ev.Price > 0.97 {
		return Signal{}
	}
	e := edge(ev, mctx)
	if e < 0.02 {
		return Signal{Edge: e}
	}
	return Signal{Enter: true, Edge: e}
}

func (s HeavyFavorite) Size(edge, available, perTradeCap float64) float64 {
	return scaledStake(edge, available, perTradeCap, DefaultMinOrderSize)
}
