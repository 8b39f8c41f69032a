package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/mirrorstack/papersim/internal/adapters/storage"
	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/mirrorstack/papersim/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSession(id string) domain.LiveSession {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.LiveSession{
		ID:        id,
		CreatedAt: now,
		StartsAt:  now,
		EndsAt:    now.Add(7 * 24 * time.Hour),
		Cursor:    now,
		State:     domain.SessionActive,
		Config: domain.SessionConfig{
			InitialCapital: 1000,
			SlippagePct:    0.04,
			CooldownHours:  1,
			PerTradeCap:    100,
			MinOrderSize:   5,
		},
	}
}

func makePortfolios() []*domain.Portfolio {
	return []*domain.Portfolio{
		domain.NewPortfolio("contrarian", "Contrarian", 1000),
		domain.NewPortfolio("singles-only", "Singles Only", 1000),
	}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sess := makeSession("sess-1")
	require.NoError(t, db.CreateSession(ctx, sess, makePortfolios()))

	got, err := db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, domain.SessionActive, got.State)
	assert.True(t, sess.Cursor.Equal(got.Cursor), "cursor round-trips exactly")
	assert.True(t, sess.EndsAt.Equal(got.EndsAt))
	assert.Equal(t, sess.Config, got.Config)
}

func TestSQLiteStore_GetUnknownSession(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetSession(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}

func TestSQLiteStore_SnapshotRoundTrip(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sess := makeSession("sess-1")
	portfolios := makePortfolios()
	require.NoError(t, db.CreateSession(ctx, sess, portfolios))

	// Mutate the ledgers: one open position, one resolved with proceeds
	// still in cooldown.
	at := sess.StartsAt.Add(10 * time.Minute)
	open := portfolios[0].Enter(domain.TradeEvent{
		MarketID: "0xaaa", Outcome: "Yes", Price: 0.5, Size: 100, Timestamp: at,
	}, 50)
	require.NotNil(t, open)

	won := portfolios[1].Enter(domain.TradeEvent{
		MarketID: "0xbbb", Outcome: "Yes", Price: 0.4, Size: 100, Timestamp: at,
	}, 100)
	require.NotNil(t, won)
	require.NoError(t, portfolios[1].Resolve(won, true, 0.04, at.Add(time.Hour)))

	cursor := at.Add(2 * time.Hour)
	require.NoError(t, db.SaveSnapshot(ctx, "sess-1", cursor, portfolios))

	got, err := db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, cursor.Equal(got.Cursor))

	loaded, err := db.LoadPortfolios(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	for i, p := range loaded {
		orig := portfolios[i]
		assert.Equal(t, orig.StrategyID, p.StrategyID)
		assert.InDelta(t, orig.Available, p.Available, 1e-9)
		assert.InDelta(t, orig.Locked, p.Locked, 1e-9)
		assert.InDelta(t, orig.Cooldown, p.Cooldown, 1e-9)
		assert.InDelta(t, orig.Total(), p.Total(), 1e-9)
		assert.InDelta(t, orig.MaxDrawdown, p.MaxDrawdown, 1e-9)
		require.Len(t, p.Positions, len(orig.Positions))
	}

	// The open position survives with its market index intact.
	assert.Equal(t, 1, loaded[0].OpenInMarket("0xaaa"))
	assert.Equal(t, open.ID, loaded[0].Positions[0].ID)
	assert.Equal(t, domain.PositionOpen, loaded[0].Positions[0].Status)

	// The resolved one keeps status, pnl and cooldown entry.
	resolved := loaded[1].Positions[0]
	assert.Equal(t, domain.PositionWon, resolved.Status)
	assert.InDelta(t, won.PnL, resolved.PnL, 1e-9)
	require.NotNil(t, resolved.ResolvedAt)
	require.Len(t, loaded[1].Pending, 1)
	assert.InDelta(t, loaded[1].Cooldown, loaded[1].Pending[0].Amount, 1e-9)
}

func TestSQLiteStore_SnapshotReplacesPriorState(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sess := makeSession("sess-1")
	portfolios := makePortfolios()
	require.NoError(t, db.CreateSession(ctx, sess, portfolios))

	at := sess.StartsAt.Add(time.Minute)
	portfolios[0].Enter(domain.TradeEvent{
		MarketID: "0xaaa", Outcome: "Yes", Price: 0.5, Size: 100, Timestamp: at,
	}, 50)
	require.NoError(t, db.SaveSnapshot(ctx, "sess-1", at, portfolios))
	require.NoError(t, db.SaveSnapshot(ctx, "sess-1", at.Add(time.Minute), portfolios))

	loaded, err := db.LoadPortfolios(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, loaded[0].Positions, 1, "snapshots replace, never accumulate")
}

func TestSQLiteStore_ArchiveAndList(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.CreateSession(ctx, makeSession("sess-1"), makePortfolios()))
	require.NoError(t, db.CreateSession(ctx, makeSession("sess-2"), makePortfolios()))

	ids, err := db.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	require.NoError(t, db.ArchiveSession(ctx, "sess-1"))
	ids, err = db.ListActiveSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-2"}, ids)

	// Archived data stays readable.
	got, err := db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionArchived, got.State)
	_, err = db.LoadPortfolios(ctx, "sess-1")
	assert.NoError(t, err)

	assert.ErrorIs(t, db.ArchiveSession(ctx, "nope"), ports.ErrSessionNotFound)
}

func TestSQLiteStore_LogsKeepNewestWithinLimit(t *testing.T) {
	db, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	sess := makeSession("sess-1")
	require.NoError(t, db.CreateSession(ctx, sess, makePortfolios()))

	var entries []domain.SessionLog
	for i := 0; i < 5; i++ {
		entries = append(entries, domain.SessionLog{
			Timestamp:  sess.StartsAt.Add(time.Duration(i) * time.Minute),
			StrategyID: "contrarian",
			Kind:       "entry",
			Message:    "entered 0xaaa",
		})
	}
	require.NoError(t, db.AppendLogs(ctx, "sess-1", entries))

	logs, err := db.GetLogs(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.True(t, entries[2].Timestamp.Equal(logs[0].Timestamp), "oldest surviving entry first")
	assert.True(t, entries[4].Timestamp.Equal(logs[2].Timestamp))
}
