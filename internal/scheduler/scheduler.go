package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/mirrorstack/papersim/internal/application/engine"
)

// Scheduler polls every active live session on a cron spec, so sessions
// keep advancing while no client is connected.
type Scheduler struct {
	cron     *cron.Cron
	sessions *engine.SessionManager
	ctx      context.Context
}

// New creates a scheduler over the given session manager.
func New(ctx context.Context, sessions *engine.SessionManager) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		ctx:      ctx,
	}
}

// Register installs the advance task. Spec uses the standard 5-field cron
// syntax, e.g. "*/15 * * * *" for every 15 minutes.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.advanceAll); err != nil {
		return fmt.Errorf("scheduler.Register: %q: %w", spec, err)
	}
	return nil
}

// Start begins scheduling. It returns immediately; jobs run on the cron's
// own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler stopped")
}

// RunNow triggers one advance pass immediately, outside the cron cadence.
func (s *Scheduler) RunNow() {
	s.advanceAll()
}

func (s *Scheduler) advanceAll() {
	s.sessions.AdvanceAll(s.ctx)
}
