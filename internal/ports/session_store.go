package ports

import (
	"context"
	"errors"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
)

// ErrSessionNotFound is returned for operations on an unknown or
// discarded session.
var ErrSessionNotFound = errors.New("live session not found")

// SessionStore persists live session state: the session record, one
// portfolio snapshot per strategy, and the activity log. Status views are
// reconstructed entirely from this state, never by replaying events from
// session start.
type SessionStore interface {
	CreateSession(ctx context.Context, s domain.LiveSession, portfolios []*domain.Portfolio) error
	GetSession(ctx context.Context, id string) (domain.LiveSession, error)
	ListActiveSessions(ctx context.Context) ([]string, error)
	ArchiveSession(ctx context.Context, id string) error

	// SaveSnapshot atomically persists the advanced portfolios and the new
	// cursor. A failed save must leave the previous snapshot intact.
	SaveSnapshot(ctx context.Context, id string, cursor time.Time, portfolios []*domain.Portfolio) error
	LoadPortfolios(ctx context.Context, id string) ([]*domain.Portfolio, error)

	AppendLogs(ctx context.Context, id string, entries []domain.SessionLog) error
	GetLogs(ctx context.Context, id string, limit int) ([]domain.SessionLog, error)
}
