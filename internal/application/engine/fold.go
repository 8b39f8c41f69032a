package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/mirrorstack/papersim/internal/strategy"
)

// foldConfig is the slice of run configuration the fold itself needs.
type foldConfig struct {
	slippagePct  float64
	cooldown     time.Duration
	perTradeCap  float64
	minOrderSize float64
	category     string
	collectLogs  bool
}

// flowStats accumulates observed flow for one market outcome.
type flowStats struct {
	notional float64
	volume   float64
	trades   int
}

// marketTracker derives the flow-weighted fair price strategies use as
// their edge reference. Only events seen before the one being evaluated
// contribute, so the estimate never peeks at the event itself.
type marketTracker struct {
	flows map[string]*flowStats
}

func newMarketTracker() *marketTracker {
	return &marketTracker{flows: make(map[string]*flowStats)}
}

func flowKey(marketID, outcome string) string {
	return marketID + "|" + outcome
}

func (t *marketTracker) observe(ev domain.TradeEvent) {
	key := flowKey(ev.MarketID, ev.Outcome)
	fs := t.flows[key]
	if fs == nil {
		fs = &flowStats{}
		t.flows[key] = fs
	}
	fs.notional += ev.Price * ev.Size
	fs.volume += ev.Size
	fs.trades++
}

func (t *marketTracker) context(ev domain.TradeEvent, mkt domain.Market, openInMarket int) domain.MarketContext {
	mctx := domain.MarketContext{
		Category:     mkt.Category,
		Liquidity:    mkt.Liquidity,
		OpenInMarket: openInMarket,
	}
	if fs := t.flows[flowKey(ev.MarketID, ev.Outcome)]; fs != nil && fs.volume > 0 {
		mctx.FairPrice = fs.notional / fs.volume
		mctx.TradeCount = fs.trades
		mctx.Volume = fs.volume
	}
	return mctx
}

// fold is the shared apply-event core: the Simulation Runner feeds it a
// bounded historical slice, the Live Session Manager an open-ended,
// cursor-tracked one. Both get identical ledger semantics.
type fold struct {
	cfg        foldConfig
	strategies []strategy.Strategy
	portfolios []*domain.Portfolio // index-aligned with strategies
	tracker    *marketTracker
	markets    map[string]domain.Market

	touched  map[string]bool
	resolved map[string]bool
	summary  Summary
	logs     []domain.SessionLog
}

func newFold(cfg foldConfig, strategies []strategy.Strategy, portfolios []*domain.Portfolio, markets map[string]domain.Market) *fold {
	if markets == nil {
		markets = map[string]domain.Market{}
	}
	return &fold{
		cfg:        cfg,
		strategies: strategies,
		portfolios: portfolios,
		tracker:    newMarketTracker(),
		markets:    markets,
		touched:    make(map[string]bool),
		resolved:   make(map[string]bool),
	}
}

// applyTrade evaluates one trade event against every strategy. Malformed
// events are skipped and counted; the batch always continues.
func (f *fold) applyTrade(ev domain.TradeEvent) {
	if !ev.Valid() {
		f.summary.TradesSkipped++
		return
	}
	mkt := f.markets[ev.MarketID]
	if f.cfg.category != "" && mkt.Category != f.cfg.category {
		return
	}

	f.summary.TradesProcessed++
	f.touched[ev.MarketID] = true

	for i, strat := range f.strategies {
		p := f.portfolios[i]
		mctx := f.tracker.context(ev, mkt, p.OpenInMarket(ev.MarketID))

		sig := strat.Evaluate(ev, mctx)
		if !sig.Enter {
			continue
		}
		stake := strat.Size(sig.Edge, p.Available, f.cfg.perTradeCap)
		if stake < f.cfg.minOrderSize {
			continue
		}
		pos := p.Enter(ev, stake)
		if pos == nil {
			continue
		}
		f.summary.TradesEntered++
		f.log(ev.Timestamp, strat.ID(), "entry",
			fmt.Sprintf("entered %s %q at %.2f for $%.2f (edge %.3f)",
				ev.MarketID, ev.Outcome, ev.Price, stake, sig.Edge))
	}

	f.tracker.observe(ev)
}

// applyResolution closes every open position in the resolved market.
// A resolution for a market without open positions is a no-op, which is
// what makes re-applying an already-seen resolution safe.
func (f *fold) applyResolution(res domain.MarketResolution) error {
	for i, p := range f.portfolios {
		for _, pos := range p.Positions {
			if pos.MarketID != res.MarketID || pos.Status != domain.PositionOpen {
				continue
			}
			won := pos.Outcome == res.WinningOutcome
			if err := p.Resolve(pos, won, f.cfg.slippagePct, res.ResolvedAt); err != nil {
				return fmt.Errorf("engine: resolve %s for %s: %w", res.MarketID, f.strategies[i].ID(), err)
			}
			f.summary.PositionsResolved++

			result := "LOST"
			if won {
				result = "WON"
			}
			f.log(res.ResolvedAt, p.StrategyID, "resolution",
				fmt.Sprintf("%s %s %q: pnl $%.2f", res.MarketID, result, pos.Outcome, pos.PnL))
		}
	}
	if f.touched[res.MarketID] && !f.resolved[res.MarketID] {
		f.resolved[res.MarketID] = true
		f.summary.MarketsWithResolution++
	}
	return nil
}

// tick advances simulated time, releasing matured cooldown entries.
func (f *fold) tick(now time.Time) {
	for _, p := range f.portfolios {
		before := p.Cooldown
		p.TickCooldown(now, f.cfg.cooldown)
		if released := before - p.Cooldown; released > 0.005 {
			f.log(now, p.StrategyID, "release",
				fmt.Sprintf("$%.2f settled out of cooldown", released))
		}
	}
}

func (f *fold) finish() {
	f.summary.MarketsTouched = len(f.touched)
}

func (f *fold) log(at time.Time, strategyID, kind, msg string) {
	if !f.cfg.collectLogs {
		return
	}
	f.logs = append(f.logs, domain.SessionLog{
		Timestamp:  at,
		StrategyID: strategyID,
		Kind:       kind,
		Message:    msg,
	})
}

// timelineItem is either a trade event or a resolution, merged into one
// time-ordered stream.
type timelineItem struct {
	at  time.Time
	ev  *domain.TradeEvent
	res *domain.MarketResolution
}

// buildTimeline merges events and resolutions into a single deterministic
// timeline. Resolutions after the cutoff stay pending: unresolved markets
// are counted, never forced to a terminal state. At equal timestamps
// trades sort before resolutions, and resolutions sort by market ID.
func buildTimeline(events []domain.TradeEvent, resolutions map[string]domain.MarketResolution, cutoff time.Time) []timelineItem {
	items := make([]timelineItem, 0, len(events)+len(resolutions))
	for i := range events {
		items = append(items, timelineItem{at: events[i].Timestamp, ev: &events[i]})
	}
	for _, id := range sortedKeys(resolutions) {
		res := resolutions[id]
		if res.ResolvedAt.After(cutoff) {
			continue
		}
		items = append(items, timelineItem{at: res.ResolvedAt, res: &res})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].at.Equal(items[j].at) {
			return items[i].at.Before(items[j].at)
		}
		// Trades before resolutions at the same instant.
		if (items[i].res == nil) != (items[j].res == nil) {
			return items[i].res == nil
		}
		if items[i].res != nil {
			return items[i].res.MarketID < items[j].res.MarketID
		}
		return false
	})
	return items
}

func sortedKeys(m map[string]domain.MarketResolution) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
