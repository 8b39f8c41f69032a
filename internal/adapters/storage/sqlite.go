package storage

// sqlite.go implements the durable store for live sessions.
//
// Layout:
//   - `sessions`: one row per session, including its frozen config and the
//     event cursor. The cursor only moves inside SaveSnapshot, so a crashed
//     advance is replayed from the last committed point.
//   - `portfolios` / `positions` / `cooldown_entries`: full ledger snapshot
//     per session, replaced wholesale on every SaveSnapshot. Sessions hold a
//     handful of strategies and at most a few hundred positions, so the
//     rewrite stays cheap and keeps the snapshot trivially consistent.
//   - `session_logs`: append-only activity feed, pruned with the session.
//   - Prune on open: archived sessions older than 30d are dropped.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/mirrorstack/papersim/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    created_at      TEXT NOT NULL,
    starts_at       TEXT NOT NULL,
    ends_at         TEXT NOT NULL,
    cursor          TEXT NOT NULL,
    state           TEXT NOT NULL,
    initial_capital REAL NOT NULL,
    slippage_pct    REAL NOT NULL DEFAULT 0,
    cooldown_hours  REAL NOT NULL DEFAULT 0,
    per_trade_cap   REAL NOT NULL DEFAULT 0,
    min_order_size  REAL NOT NULL DEFAULT 0,
    category        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS portfolios (
    session_id      TEXT NOT NULL,
    strategy_id     TEXT NOT NULL,
    strategy_name   TEXT NOT NULL,
    initial_capital REAL NOT NULL,
    available       REAL NOT NULL,
    locked          REAL NOT NULL,
    cooldown        REAL NOT NULL,
    peak_total      REAL NOT NULL,
    max_drawdown    REAL NOT NULL,
    PRIMARY KEY (session_id, strategy_id)
);

CREATE TABLE IF NOT EXISTS positions (
    session_id  TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    id          TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    market_id   TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    entry_price REAL NOT NULL,
    invested    REAL NOT NULL,
    entered_at  TEXT NOT NULL,
    status      TEXT NOT NULL,
    resolved_at TEXT,
    pnl         REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, strategy_id, id)
);

CREATE TABLE IF NOT EXISTS cooldown_entries (
    session_id  TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    amount      REAL NOT NULL,
    resolved_at TEXT NOT NULL,
    PRIMARY KEY (session_id, strategy_id, seq)
);

CREATE TABLE IF NOT EXISTS session_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    ts          TEXT NOT NULL,
    strategy_id TEXT NOT NULL,
    kind        TEXT NOT NULL,
    message     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_state   ON sessions(state);
CREATE INDEX IF NOT EXISTS idx_positions_market ON positions(session_id, market_id);
CREATE INDEX IF NOT EXISTS idx_logs_session     ON session_logs(session_id, id DESC);
`

const retentionArchived = 30 * 24 * time.Hour

// timeLayout keeps nanosecond precision so cursors and position timestamps
// round-trip exactly; cursor equality is what makes retried advances no-ops.
const timeLayout = time.RFC3339Nano

// SQLiteStore implements ports.SessionStore on SQLite (pure Go, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path, applies
// the schema and prunes long-archived sessions.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneArchived(context.Background())
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession persists a new session together with its initial portfolios.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess domain.LiveSession, portfolios []*domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CreateSession: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, starts_at, ends_at, cursor, state,
		                      initial_capital, slippage_pct, cooldown_hours,
		                      per_trade_cap, min_order_size, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.CreatedAt.UTC().Format(timeLayout),
		sess.StartsAt.UTC().Format(timeLayout),
		sess.EndsAt.UTC().Format(timeLayout),
		sess.Cursor.UTC().Format(timeLayout),
		string(sess.State),
		sess.Config.InitialCapital,
		sess.Config.SlippagePct,
		sess.Config.CooldownHours,
		sess.Config.PerTradeCap,
		sess.Config.MinOrderSize,
		sess.Config.Category,
	); err != nil {
		return fmt.Errorf("storage.CreateSession: insert session %s: %w", sess.ID, err)
	}

	if err := writePortfolios(ctx, tx, sess.ID, portfolios); err != nil {
		return fmt.Errorf("storage.CreateSession: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CreateSession: commit: %w", err)
	}
	return nil
}

// GetSession loads one session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (domain.LiveSession, error) {
	var (
		sess                                domain.LiveSession
		createdAt, startsAt, endsAt, cursor string
		state                               string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, starts_at, ends_at, cursor, state,
		       initial_capital, slippage_pct, cooldown_hours,
		       per_trade_cap, min_order_size, category
		FROM sessions WHERE id = ?`, id,
	).Scan(
		&sess.ID, &createdAt, &startsAt, &endsAt, &cursor, &state,
		&sess.Config.InitialCapital, &sess.Config.SlippagePct,
		&sess.Config.CooldownHours, &sess.Config.PerTradeCap,
		&sess.Config.MinOrderSize, &sess.Config.Category,
	)
	if err == sql.ErrNoRows {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: %s: %w", id, ports.ErrSessionNotFound)
	}
	if err != nil {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: %s: %w", id, err)
	}

	sess.State = domain.SessionState(state)
	if sess.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: created_at: %w", err)
	}
	if sess.StartsAt, err = time.Parse(timeLayout, startsAt); err != nil {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: starts_at: %w", err)
	}
	if sess.EndsAt, err = time.Parse(timeLayout, endsAt); err != nil {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: ends_at: %w", err)
	}
	if sess.Cursor, err = time.Parse(timeLayout, cursor); err != nil {
		return domain.LiveSession{}, fmt.Errorf("storage.GetSession: cursor: %w", err)
	}
	return sess, nil
}

// ListActiveSessions returns ids of sessions still accepting advances.
func (s *SQLiteStore) ListActiveSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE state = ? ORDER BY created_at`,
		string(domain.SessionActive),
	)
	if err != nil {
		return nil, fmt.Errorf("storage.ListActiveSessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage.ListActiveSessions: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArchiveSession flips the session to ARCHIVED. Its data stays queryable.
func (s *SQLiteStore) ArchiveSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ? WHERE id = ?`,
		string(domain.SessionArchived), id,
	)
	if err != nil {
		return fmt.Errorf("storage.ArchiveSession: %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.ArchiveSession: %s: %w", id, ports.ErrSessionNotFound)
	}
	return nil
}

// SaveSnapshot atomically replaces the session's ledgers and moves its
// cursor. Either the whole snapshot lands or none of it does.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, id string, cursor time.Time, portfolios []*domain.Portfolio) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET cursor = ? WHERE id = ?`,
		cursor.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: update cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SaveSnapshot: %s: %w", id, ports.ErrSessionNotFound)
	}

	for _, table := range []string{"portfolios", "positions", "cooldown_entries"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), id,
		); err != nil {
			return fmt.Errorf("storage.SaveSnapshot: clear %s: %w", table, err)
		}
	}

	if err := writePortfolios(ctx, tx, id, portfolios); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: commit: %w", err)
	}
	return nil
}

// LoadPortfolios restores every ledger of a session, positions in their
// original entry order.
func (s *SQLiteStore) LoadPortfolios(ctx context.Context, id string) ([]*domain.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, strategy_name, initial_capital,
		       available, locked, cooldown, peak_total, max_drawdown
		FROM portfolios WHERE session_id = ? ORDER BY strategy_id`, id)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPortfolios: query: %w", err)
	}
	defer rows.Close()

	byStrategy := make(map[string]*domain.Portfolio)
	var out []*domain.Portfolio
	for rows.Next() {
		p := &domain.Portfolio{}
		if err := rows.Scan(
			&p.StrategyID, &p.StrategyName, &p.InitialCapital,
			&p.Available, &p.Locked, &p.Cooldown, &p.PeakTotal, &p.MaxDrawdown,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadPortfolios: scan portfolio: %w", err)
		}
		byStrategy[p.StrategyID] = p
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.LoadPortfolios: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("storage.LoadPortfolios: %s: %w", id, ports.ErrSessionNotFound)
	}

	if err := s.loadPositions(ctx, id, byStrategy); err != nil {
		return nil, err
	}
	if err := s.loadCooldown(ctx, id, byStrategy); err != nil {
		return nil, err
	}

	for _, p := range out {
		p.RebuildIndex()
	}
	return out, nil
}

// AppendLogs adds activity entries to the session's feed.
func (s *SQLiteStore) AppendLogs(ctx context.Context, id string, entries []domain.SessionLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.AppendLogs: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_logs (session_id, ts, strategy_id, kind, message)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.AppendLogs: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			id, e.Timestamp.UTC().Format(timeLayout), e.StrategyID, e.Kind, e.Message,
		); err != nil {
			return fmt.Errorf("storage.AppendLogs: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.AppendLogs: commit: %w", err)
	}
	return nil
}

// GetLogs returns the newest `limit` entries in chronological order.
func (s *SQLiteStore) GetLogs(ctx context.Context, id string, limit int) ([]domain.SessionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, strategy_id, kind, message
		FROM session_logs WHERE session_id = ?
		ORDER BY id DESC LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLogs: query: %w", err)
	}
	defer rows.Close()

	var logs []domain.SessionLog
	for rows.Next() {
		var entry domain.SessionLog
		var ts string
		if err := rows.Scan(&ts, &entry.StrategyID, &entry.Kind, &entry.Message); err != nil {
			return nil, fmt.Errorf("storage.GetLogs: scan: %w", err)
		}
		if entry.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("storage.GetLogs: ts: %w", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query, oldest-first for the caller.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// --- internal helpers ---

func writePortfolios(ctx context.Context, tx *sql.Tx, sessionID string, portfolios []*domain.Portfolio) error {
	pfStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO portfolios (session_id, strategy_id, strategy_name, initial_capital,
		                        available, locked, cooldown, peak_total, max_drawdown)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare portfolios: %w", err)
	}
	defer pfStmt.Close()

	posStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (session_id, strategy_id, id, seq, market_id, outcome,
		                       entry_price, invested, entered_at, status, resolved_at, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare positions: %w", err)
	}
	defer posStmt.Close()

	cdStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cooldown_entries (session_id, strategy_id, seq, amount, resolved_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cooldown: %w", err)
	}
	defer cdStmt.Close()

	for _, p := range portfolios {
		if _, err := pfStmt.ExecContext(ctx,
			sessionID, p.StrategyID, p.StrategyName, p.InitialCapital,
			p.Available, p.Locked, p.Cooldown, p.PeakTotal, p.MaxDrawdown,
		); err != nil {
			return fmt.Errorf("insert portfolio %s: %w", p.StrategyID, err)
		}

		for seq, pos := range p.Positions {
			var resolvedAt *string
			if pos.ResolvedAt != nil {
				t := pos.ResolvedAt.UTC().Format(timeLayout)
				resolvedAt = &t
			}
			if _, err := posStmt.ExecContext(ctx,
				sessionID, p.StrategyID, pos.ID, seq, pos.MarketID, pos.Outcome,
				pos.EntryPrice, pos.Invested,
				pos.EnteredAt.UTC().Format(timeLayout),
				string(pos.Status), resolvedAt, pos.PnL,
			); err != nil {
				return fmt.Errorf("insert position %s: %w", pos.ID, err)
			}
		}

		for seq, e := range p.Pending {
			if _, err := cdStmt.ExecContext(ctx,
				sessionID, p.StrategyID, seq, e.Amount,
				e.ResolvedAt.UTC().Format(timeLayout),
			); err != nil {
				return fmt.Errorf("insert cooldown entry: %w", err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) loadPositions(ctx context.Context, sessionID string, byStrategy map[string]*domain.Portfolio) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, id, market_id, outcome, entry_price, invested,
		       entered_at, status, resolved_at, pnl
		FROM positions WHERE session_id = ?
		ORDER BY strategy_id, seq`, sessionID)
	if err != nil {
		return fmt.Errorf("storage.LoadPortfolios: query positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			strategyID, status, enteredAt string
			resolvedAt                    sql.NullString
			pos                           domain.Position
		)
		if err := rows.Scan(
			&strategyID, &pos.ID, &pos.MarketID, &pos.Outcome,
			&pos.EntryPrice, &pos.Invested, &enteredAt, &status, &resolvedAt, &pos.PnL,
		); err != nil {
			return fmt.Errorf("storage.LoadPortfolios: scan position: %w", err)
		}
		pos.Status = domain.PositionStatus(status)
		if pos.EnteredAt, err = time.Parse(timeLayout, enteredAt); err != nil {
			return fmt.Errorf("storage.LoadPortfolios: entered_at: %w", err)
		}
		if resolvedAt.Valid {
			t, err := time.Parse(timeLayout, resolvedAt.String)
			if err != nil {
				return fmt.Errorf("storage.LoadPortfolios: resolved_at: %w", err)
			}
			pos.ResolvedAt = &t
		}
		if p, ok := byStrategy[strategyID]; ok {
			copied := pos
			p.Positions = append(p.Positions, &copied)
		}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadCooldown(ctx context.Context, sessionID string, byStrategy map[string]*domain.Portfolio) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy_id, amount, resolved_at
		FROM cooldown_entries WHERE session_id = ?
		ORDER BY strategy_id, seq`, sessionID)
	if err != nil {
		return fmt.Errorf("storage.LoadPortfolios: query cooldown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			strategyID, resolvedAt string
			entry                  domain.CooldownEntry
		)
		if err := rows.Scan(&strategyID, &entry.Amount, &resolvedAt); err != nil {
			return fmt.Errorf("storage.LoadPortfolios: scan cooldown: %w", err)
		}
		if entry.ResolvedAt, err = time.Parse(timeLayout, resolvedAt); err != nil {
			return fmt.Errorf("storage.LoadPortfolios: resolved_at: %w", err)
		}
		if p, ok := byStrategy[strategyID]; ok {
			p.Pending = append(p.Pending, entry)
		}
	}
	return rows.Err()
}

// pruneArchived drops archived sessions past retention, with their ledgers
// and logs. Best effort.
func (s *SQLiteStore) pruneArchived(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionArchived).Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE state = ? AND ends_at < ?`,
		string(domain.SessionArchived), cutoff,
	)
	if err != nil {
		return
	}
	var ids []string
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	for _, id := range ids {
		for _, table := range []string{"session_logs", "cooldown_entries", "positions", "portfolios"} {
			s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), id)
		}
		s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	}
}
