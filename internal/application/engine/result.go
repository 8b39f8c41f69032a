package engine

import (
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
)

// recentTradeCount bounds the trade list in portfolio projections.
const recentTradeCount = 20

// Summary counts what a run actually saw and did.
type Summary struct {
	TradesProcessed       int
	TradesEntered         int
	TradesSkipped         int // malformed records, skipped per-record
	PositionsResolved     int
	MarketsTouched        int
	MarketsWithResolution int
}

// ConfigView is the run configuration echoed back in reports.
type ConfigView struct {
	Days           int
	InitialCapital float64
	SlippagePct    float64
	CooldownHours  float64
	Start          time.Time
	End            time.Time
	Strategies     []string
}

// PortfolioView is the per-strategy projection consumed by the
// presentation layer: capital breakdown, metrics and recent trades.
type PortfolioView struct {
	StrategyID     string
	StrategyName   string
	InitialCapital float64
	Available      float64
	Locked         float64
	Cooldown       float64
	Total          float64
	Metrics        domain.PerformanceMetrics
	RecentTrades   []domain.Position
}

// BacktestReport is the full result of one simulation run.
type BacktestReport struct {
	Config     ConfigView
	Summary    Summary
	Rankings   []domain.RankingEntry
	Portfolios map[string]PortfolioView // keyed by strategy ID
}

// PeriodResult is one window of a multi-period backtest.
type PeriodResult struct {
	Index    int // 1-based, chronological
	Start    time.Time
	End      time.Time
	Summary  Summary
	Rankings []domain.RankingEntry
}

// AggregateEntry is one strategy's statistics across all periods.
type AggregateEntry struct {
	Rank           int
	StrategyID     string
	StrategyName   string
	AvgROI         float64
	AvgWinRate     float64
	TotalTrades    int
	AvgMaxDrawdown float64
	PeriodsWon     int     // #1 finishes
	Consistency    float64 // top-2 finishes / periods
}

// MultiPeriodReport combines N disjoint-window backtests.
type MultiPeriodReport struct {
	Periods            int
	WindowDays         int
	GapDays            int
	AggregatedRankings []AggregateEntry
	PeriodResults      []PeriodResult
}

// SessionStatus is the live session view, reconstructed from stored state.
type SessionStatus struct {
	Session    domain.LiveSession
	Rankings   []domain.RankingEntry
	Portfolios map[string]PortfolioView // nil unless detail requested
	Logs       []domain.SessionLog      // nil unless detail requested
}

// AdvanceResult reports what one advance call folded in.
type AdvanceResult struct {
	EventsProcessed   int
	TradesEntered     int
	PositionsResolved int
	TradesSkipped     int
	Cursor            time.Time
}

// buildPortfolioView projects a ledger into its presentation shape.
func buildPortfolioView(p *domain.Portfolio) PortfolioView {
	view := PortfolioView{
		StrategyID:     p.StrategyID,
		StrategyName:   p.StrategyName,
		InitialCapital: p.InitialCapital,
		Available:      p.Available,
		Locked:         p.Locked,
		Cooldown:       p.Cooldown,
		Total:          p.Total(),
		Metrics:        p.Metrics(),
	}

	start := len(p.Positions) - recentTradeCount
	if start < 0 {
		start = 0
	}
	recent := p.Positions[start:]
	view.RecentTrades = make([]domain.Position, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- { // most recent first
		view.RecentTrades = append(view.RecentTrades, *recent[i])
	}
	return view
}

func buildPortfolioViews(portfolios []*domain.Portfolio) map[string]PortfolioView {
	views := make(map[string]PortfolioView, len(portfolios))
	for _, p := range portfolios {
		views[p.StrategyID] = buildPortfolioView(p)
	}
	return views
}
