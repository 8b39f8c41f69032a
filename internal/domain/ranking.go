package domain

import "sort"

// RankingEntry is one strategy's row in a run ranking.
type RankingEntry struct {
	Rank          int
	StrategyID    string
	StrategyName  string
	Total         float64
	ROI           float64
	WinRate       float64
	MaxDrawdown   float64
	TotalPnL      float64
	TradesEntered int
}

// RankPortfolios orders strategies descending by final total capital.
// Ties break on higher win rate, then lower max drawdown, then strategy ID
// so identical inputs always produce the same ranking.
func RankPortfolios(portfolios []*Portfolio) []RankingEntry {
	entries := make([]RankingEntry, 0, len(portfolios))
	for _, p := range portfolios {
		m := p.Metrics()
		entries = append(entries, RankingEntry{
			StrategyID:    p.StrategyID,
			StrategyName:  p.StrategyName,
			Total:         p.Total(),
			ROI:           m.ROI,
			WinRate:       m.WinRate,
			MaxDrawdown:   m.MaxDrawdown,
			TotalPnL:      m.TotalPnL,
			TradesEntered: m.TradesEntered,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if a.WinRate != b.WinRate {
			return a.WinRate > b.WinRate
		}
		if a.MaxDrawdown != b.MaxDrawdown {
			return a.MaxDrawdown < b.MaxDrawdown
		}
		return a.StrategyID < b.StrategyID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
