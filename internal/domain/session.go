package domain

import "time"

// SessionState is the lifecycle of a live session.
type SessionState string

const (
	SessionActive   SessionState = "ACTIVE"
	SessionArchived SessionState = "ARCHIVED"
)

// SessionConfig is the persisted configuration of a live session.
type SessionConfig struct {
	InitialCapital float64
	SlippagePct    float64
	CooldownHours  float64
	PerTradeCap    float64
	MinOrderSize   float64
	Category       string // optional market category filter
}

// LiveSession is the durable identity of an incremental simulation. It
// survives process and client restarts; the cursor marks the last trade
// event folded into the portfolios so repeated polling never reprocesses
// the same event twice.
type LiveSession struct {
	ID        string
	CreatedAt time.Time
	StartsAt  time.Time
	EndsAt    time.Time
	Cursor    time.Time
	State     SessionState
	Config    SessionConfig
}

// Active reports whether the session still accepts advances.
func (s LiveSession) Active() bool {
	return s.State == SessionActive
}

// SessionLog is one human-readable line of live session activity.
type SessionLog struct {
	Timestamp  time.Time
	StrategyID string
	Kind       string // "entry" | "resolution" | "release" | "info"
	Message    string
}
