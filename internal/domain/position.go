package domain

import "time"

// PositionStatus is the lifecycle of a simulated position.
// Transitions are OPEN → WON or OPEN → LOST, never backward.
type PositionStatus string

const (
	PositionOpen PositionStatus = "OPEN"
	PositionWon  PositionStatus = "WON"
	PositionLost PositionStatus = "LOST"
)

// Position is a single simulated bet on one market outcome, owned by
// exactly one Portfolio.
type Position struct {
	ID         string
	MarketID   string
	Outcome    string
	EntryPrice float64
	Invested   float64 // USDC, never exceeds available capital at entry
	EnteredAt  time.Time
	Status     PositionStatus
	ResolvedAt *time.Time
	PnL        float64 // realized, computed at resolution
}

// Closed reports whether the position reached a terminal state.
func (p Position) Closed() bool {
	return p.Status == PositionWon || p.Status == PositionLost
}
