package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrPositionNotOpen is returned when a resolution targets a position that
// already reached a terminal state. With single-writer access this should be
// unreachable; callers treat it as a programming error, not a user error.
var ErrPositionNotOpen = errors.New("position is not open")

// CooldownEntry holds proceeds of a just-closed position until the
// settlement latency window elapses.
type CooldownEntry struct {
	Amount     float64
	ResolvedAt time.Time
}

// Portfolio is the capital and position ledger for one strategy in one run
// or live session. Capital is partitioned into three mutually exclusive
// pools: Available (free to invest), Locked (invested in open positions)
// and Cooldown (proceeds waiting out settlement latency).
//
// Invariant: Available + Locked + Cooldown == Total() at every observation
// point, and Total changes only by realized P&L at position resolution.
type Portfolio struct {
	StrategyID     string
	StrategyName   string
	InitialCapital float64
	Available      float64
	Locked         float64
	Cooldown       float64
	Pending        []CooldownEntry
	Positions      []*Position

	// Drawdown tracking, updated at each resolution so metrics never
	// require replaying an equity curve.
	PeakTotal   float64
	MaxDrawdown float64 // fraction of peak, 0–1

	openByMarket map[string]int
}

// NewPortfolio creates an empty ledger with all capital available.
func NewPortfolio(strategyID, strategyName string, initialCapital float64) *Portfolio {
	return &Portfolio{
		StrategyID:     strategyID,
		StrategyName:   strategyName,
		InitialCapital: initialCapital,
		Available:      initialCapital,
		PeakTotal:      initialCapital,
		openByMarket:   make(map[string]int),
	}
}

// Total is the portfolio's full simulated capital.
func (p *Portfolio) Total() float64 {
	return p.Available + p.Locked + p.Cooldown
}

// ROI is the return over initial capital, as a fraction.
func (p *Portfolio) ROI() float64 {
	if p.InitialCapital <= 0 {
		return 0
	}
	return (p.Total() - p.InitialCapital) / p.InitialCapital
}

// OpenInMarket returns how many open positions the ledger holds in a market.
func (p *Portfolio) OpenInMarket(marketID string) int {
	if p.openByMarket == nil {
		p.rebuildIndex()
	}
	return p.openByMarket[marketID]
}

// Enter moves stake from available to locked and opens a position.
// A non-positive stake or insufficient capital is a no-op, not an error.
func (p *Portfolio) Enter(ev TradeEvent, stake float64) *Position {
	if stake <= 0 || stake > p.Available {
		return nil
	}
	if p.openByMarket == nil {
		p.rebuildIndex()
	}

	p.Available -= stake
	p.Locked += stake

	// Sequence-based IDs keep runs over identical inputs bit-identical.
	pos := &Position{
		ID:         fmt.Sprintf("%s-%s-%d", p.StrategyID, ev.MarketID, len(p.Positions)+1),
		MarketID:   ev.MarketID,
		Outcome:    ev.Outcome,
		EntryPrice: ev.Price,
		Invested:   stake,
		EnteredAt:  ev.Timestamp,
		Status:     PositionOpen,
	}
	p.Positions = append(p.Positions, pos)
	p.openByMarket[ev.MarketID]++
	return pos
}

// Resolve transitions an open position to WON or LOST, applying the
// configured slippage against the theoretical payout. The invested amount
// leaves the locked pool and the proceeds (invested + pnl) enter cooldown;
// they reach available only once the settlement window elapses.
func (p *Portfolio) Resolve(pos *Position, won bool, slippagePct float64, at time.Time) error {
	if pos.Status != PositionOpen {
		return fmt.Errorf("portfolio.Resolve: %s in market %s: %w",
			pos.Status, pos.MarketID, ErrPositionNotOpen)
	}
	if p.openByMarket == nil {
		p.rebuildIndex()
	}

	resolvedAt := at
	pos.ResolvedAt = &resolvedAt
	if won {
		pos.Status = PositionWon
		pos.PnL = pos.Invested * (1/pos.EntryPrice - 1) * (1 - slippagePct)
	} else {
		pos.Status = PositionLost
		pos.PnL = -pos.Invested
	}

	p.Locked -= pos.Invested
	if proceeds := pos.Invested + pos.PnL; proceeds > 0 {
		p.Cooldown += proceeds
		p.Pending = append(p.Pending, CooldownEntry{Amount: proceeds, ResolvedAt: resolvedAt})
	}

	if n := p.openByMarket[pos.MarketID]; n > 1 {
		p.openByMarket[pos.MarketID] = n - 1
	} else {
		delete(p.openByMarket, pos.MarketID)
	}

	p.trackDrawdown()
	return nil
}

// TickCooldown releases matured cooldown entries back to available.
// It must be called whenever simulated time advances, including at the
// final tick of a run: entries still inside the window stay reported as
// cooldown, never silently folded into available.
func (p *Portfolio) TickCooldown(now time.Time, cooldown time.Duration) {
	if len(p.Pending) == 0 {
		return
	}
	remaining := p.Pending[:0]
	for _, e := range p.Pending {
		if e.ResolvedAt.Add(cooldown).After(now) {
			remaining = append(remaining, e)
			continue
		}
		p.Cooldown -= e.Amount
		p.Available += e.Amount
	}
	p.Pending = remaining
	if len(p.Pending) == 0 {
		p.Cooldown = 0 // absorb float residue once the queue drains
	}
}

// RebuildIndex restores derived state after loading a portfolio from
// storage. Exported fields round-trip through persistence; the open
// position index does not.
func (p *Portfolio) RebuildIndex() {
	p.rebuildIndex()
}

func (p *Portfolio) rebuildIndex() {
	p.openByMarket = make(map[string]int)
	for _, pos := range p.Positions {
		if pos.Status == PositionOpen {
			p.openByMarket[pos.MarketID]++
		}
	}
}

func (p *Portfolio) trackDrawdown() {
	total := p.Total()
	if total > p.PeakTotal {
		p.PeakTotal = total
		return
	}
	if p.PeakTotal <= 0 {
		return
	}
	if dd := (p.PeakTotal - total) / p.PeakTotal; dd > p.MaxDrawdown {
		p.MaxDrawdown = dd
	}
}

// PerformanceMetrics summarizes closed positions of one portfolio.
type PerformanceMetrics struct {
	TradesEntered int
	OpenCount     int
	WonCount      int
	LostCount     int
	WinRate       float64
	TotalPnL      float64
	AvgWin        float64
	AvgLoss       float64
	ProfitFactor  float64 // +Inf when there are wins and no losses
	MaxDrawdown   float64
	ROI           float64
}

// Metrics derives performance metrics from the ledger's positions.
// Pure with respect to the ledger: it mutates nothing.
func (p *Portfolio) Metrics() PerformanceMetrics {
	m := PerformanceMetrics{
		TradesEntered: len(p.Positions),
		MaxDrawdown:   p.MaxDrawdown,
		ROI:           p.ROI(),
	}

	var sumWins, sumLosses float64
	for _, pos := range p.Positions {
		switch pos.Status {
		case PositionOpen:
			m.OpenCount++
		case PositionWon:
			m.WonCount++
			m.TotalPnL += pos.PnL
			sumWins += pos.PnL
		case PositionLost:
			m.LostCount++
			m.TotalPnL += pos.PnL
			sumLosses += pos.PnL
		}
	}

	if closed := m.WonCount + m.LostCount; closed > 0 {
		m.WinRate = float64(m.WonCount) / float64(closed)
	}
	if m.WonCount > 0 {
		m.AvgWin = sumWins / float64(m.WonCount)
	}
	if m.LostCount > 0 {
		m.AvgLoss = sumLosses / float64(m.LostCount)
	}
	switch {
	case sumLosses < 0:
		m.ProfitFactor = sumWins / math.Abs(sumLosses)
	case sumWins > 0:
		m.ProfitFactor = math.Inf(1)
	}
	return m
}
