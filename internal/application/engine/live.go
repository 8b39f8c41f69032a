package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/mirrorstack/papersim/internal/ports"
	"github.com/mirrorstack/papersim/internal/strategy"
)

const statusLogLimit = 50

// SessionManager owns durable live sessions: persisted, resumable
// simulations that incrementally fold newly arrived trade events into
// per-strategy portfolios, independent of any client connection.
//
// Mutating access is serialized per session; overlapping or retried
// Advance calls never double-apply an event because fetches are strictly
// cursor-bounded and resolutions are no-ops once positions close.
type SessionManager struct {
	source  ports.TradeSource
	store   ports.SessionStore
	metrics *Metrics
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithMetrics wires a Prometheus collector into the manager.
func WithMetrics(m *Metrics) Option {
	return func(sm *SessionManager) { sm.metrics = m }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(sm *SessionManager) { sm.now = now }
}

// NewSessionManager creates a manager over the given source and store.
func NewSessionManager(source ports.TradeSource, store ports.SessionStore, opts ...Option) *SessionManager {
	sm := &SessionManager{
		source: source,
		store:  store,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Create initializes one portfolio per strategy at the configured capital
// and a cursor at session start, then persists the session.
func (sm *SessionManager) Create(ctx context.Context, cfg LiveConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("engine.Create: %w", err)
	}

	now := sm.now().UTC()
	sess := domain.LiveSession{
		ID:        uuid.NewString(),
		CreatedAt: now,
		StartsAt:  now,
		EndsAt:    now.Add(time.Duration(cfg.DurationDays) * 24 * time.Hour),
		Cursor:    now,
		State:     domain.SessionActive,
		Config: domain.SessionConfig{
			InitialCapital: cfg.InitialCapital,
			SlippagePct:    cfg.SlippagePct,
			CooldownHours:  cfg.CooldownHours,
			PerTradeCap:    cfg.InitialCapital * cfg.PerTradeCapPct,
			MinOrderSize:   DefaultMinOrderSize,
			Category:       cfg.Category,
		},
	}

	strategies := strategy.All()
	portfolios := make([]*domain.Portfolio, len(strategies))
	for i, s := range strategies {
		portfolios[i] = domain.NewPortfolio(s.ID(), s.Name(), cfg.InitialCapital)
	}

	if err := sm.store.CreateSession(ctx, sess, portfolios); err != nil {
		return "", fmt.Errorf("engine.Create: %w", err)
	}

	sm.metrics.sessionDelta(1)
	slog.Info("live session created",
		"session", sess.ID,
		"capital", cfg.InitialCapital,
		"ends", sess.EndsAt.Format(time.RFC3339),
	)
	return sess.ID, nil
}

// Advance fetches all trade events past the stored cursor, folds them into
// the portfolios in timestamp order and persists the new snapshot. Safe to
// call repeatedly and concurrently for the same session. A failed fetch
// leaves the session untouched and defers to the next poll.
func (sm *SessionManager) Advance(ctx context.Context, id string) (result *AdvanceResult, err error) {
	lock := sm.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()
	defer func() { sm.metrics.advance(result, err) }()

	sess, err := sm.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.Advance: %w", err)
	}
	if !sess.Active() {
		return nil, fmt.Errorf("engine.Advance: session %s: %w", id, ports.ErrSessionNotFound)
	}

	now := sm.now().UTC()
	if now.After(sess.EndsAt) {
		now = sess.EndsAt
	}
	if !now.After(sess.Cursor) {
		return &AdvanceResult{Cursor: sess.Cursor}, nil
	}

	events, err := sm.source.FetchEvents(ctx, sess.Cursor, now)
	if err != nil {
		return nil, fmt.Errorf("engine.Advance: fetch events: %w", err)
	}

	portfolios, err := sm.store.LoadPortfolios(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.Advance: %w", err)
	}
	strategies, err := strategiesFor(portfolios)
	if err != nil {
		return nil, fmt.Errorf("engine.Advance: %w", err)
	}

	ids := distinctMarkets(events)
	ids = appendOpenMarkets(ids, portfolios)

	resolutions, err := sm.source.FetchResolutions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("engine.Advance: fetch resolutions: %w", err)
	}
	markets, err := sm.source.FetchMarkets(ctx, ids)
	if err != nil {
		slog.Warn("live: market metadata unavailable, strategies run without it",
			"session", id, "err", err)
		markets = nil
	}

	f := newFold(foldConfig{
		slippagePct:  sess.Config.SlippagePct,
		cooldown:     time.Duration(sess.Config.CooldownHours * float64(time.Hour)),
		perTradeCap:  sess.Config.PerTradeCap,
		minOrderSize: sess.Config.MinOrderSize,
		category:     sess.Config.Category,
		collectLogs:  true,
	}, strategies, portfolios, markets)

	for _, item := range buildTimeline(events, resolutions, now) {
		f.tick(item.at)
		if item.ev != nil {
			f.applyTrade(*item.ev)
		} else if err := f.applyResolution(*item.res); err != nil {
			return nil, fmt.Errorf("engine.Advance: %w", err)
		}
	}
	f.tick(now)
	f.finish()

	cursor := sess.Cursor
	if len(events) > 0 {
		cursor = events[len(events)-1].Timestamp
	}

	if err := sm.store.SaveSnapshot(ctx, id, cursor, portfolios); err != nil {
		return nil, fmt.Errorf("engine.Advance: save snapshot: %w", err)
	}
	if len(f.logs) > 0 {
		if err := sm.store.AppendLogs(ctx, id, f.logs); err != nil {
			slog.Warn("live: failed to append session logs", "session", id, "err", err)
		}
	}

	for _, entry := range f.logs {
		sm.metrics.position(entry.StrategyID, entry.Kind, 1)
	}

	return &AdvanceResult{
		EventsProcessed:   f.summary.TradesProcessed,
		TradesEntered:     f.summary.TradesEntered,
		PositionsResolved: f.summary.PositionsResolved,
		TradesSkipped:     f.summary.TradesSkipped,
		Cursor:            cursor,
	}, nil
}

// Status rebuilds the session view entirely from stored state, never by
// replaying events from session start. With detail it includes full
// portfolio projections and the recent activity log.
func (sm *SessionManager) Status(ctx context.Context, id string, detail bool) (*SessionStatus, error) {
	sess, err := sm.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.Status: %w", err)
	}
	portfolios, err := sm.store.LoadPortfolios(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine.Status: %w", err)
	}

	status := &SessionStatus{
		Session:  sess,
		Rankings: domain.RankPortfolios(portfolios),
	}
	if detail {
		status.Portfolios = buildPortfolioViews(portfolios)
		logs, err := sm.store.GetLogs(ctx, id, statusLogLimit)
		if err != nil {
			slog.Warn("live: failed to load session logs", "session", id, "err", err)
		} else {
			status.Logs = logs
		}
	}
	return status, nil
}

// Discard archives the session. Its state stays queryable but it no
// longer advances.
func (sm *SessionManager) Discard(ctx context.Context, id string) error {
	lock := sm.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := sm.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("engine.Discard: %w", err)
	}
	if !sess.Active() {
		return nil
	}
	if err := sm.store.ArchiveSession(ctx, id); err != nil {
		return fmt.Errorf("engine.Discard: %w", err)
	}
	sm.metrics.sessionDelta(-1)
	slog.Info("live session archived", "session", id)
	return nil
}

// AdvanceAll advances every active session, skipping failures so one bad
// session never stalls the rest. Used by the scheduler.
func (sm *SessionManager) AdvanceAll(ctx context.Context) {
	ids, err := sm.store.ListActiveSessions(ctx)
	if err != nil {
		slog.Warn("live: failed to list active sessions", "err", err)
		return
	}
	for _, id := range ids {
		result, err := sm.Advance(ctx, id)
		if err != nil {
			slog.Warn("live: scheduled advance failed", "session", id, "err", err)
			continue
		}
		if result.EventsProcessed > 0 || result.PositionsResolved > 0 {
			slog.Info("live: session advanced",
				"session", id,
				"events", result.EventsProcessed,
				"entered", result.TradesEntered,
				"resolved", result.PositionsResolved,
			)
		}
	}
}

func (sm *SessionManager) sessionLock(id string) *sync.Mutex {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	lock := sm.locks[id]
	if lock == nil {
		lock = &sync.Mutex{}
		sm.locks[id] = lock
	}
	return lock
}

// strategiesFor resolves the strategy behind each stored portfolio,
// keeping the two slices index-aligned.
func strategiesFor(portfolios []*domain.Portfolio) ([]strategy.Strategy, error) {
	out := make([]strategy.Strategy, len(portfolios))
	for i, p := range portfolios {
		s := strategy.ByID(p.StrategyID)
		if s == nil {
			return nil, fmt.Errorf("unknown strategy %q in stored session", p.StrategyID)
		}
		out[i] = s
	}
	return out, nil
}

// appendOpenMarkets adds markets with open positions so their resolutions
// are looked up even when no new trade touched them.
func appendOpenMarkets(ids []string, portfolios []*domain.Portfolio) []string {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, p := range portfolios {
		for _, pos := range p.Positions {
			if pos.Status == domain.PositionOpen && !seen[pos.MarketID] {
				seen[pos.MarketID] = true
				ids = append(ids, pos.MarketID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
