package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mirrorstack/papersim/config"
	"github.com/mirrorstack/papersim/internal/adapters/notify"
	"github.com/mirrorstack/papersim/internal/adapters/polymarket"
	"github.com/mirrorstack/papersim/internal/adapters/storage"
	"github.com/mirrorstack/papersim/internal/application/engine"
	"github.com/mirrorstack/papersim/internal/scheduler"
)

func liveConfig(cfg *config.Config) engine.LiveConfig {
	return engine.LiveConfig{
		InitialCapital: cfg.Simulation.InitialCapital,
		DurationDays:   cfg.Simulation.Days,
		SlippagePct:    cfg.Simulation.SlippagePct,
		CooldownHours:  cfg.Simulation.CooldownHours,
		PerTradeCapPct: cfg.Simulation.PerTradeCapPct,
		Category:       cfg.Simulation.Category,
	}
}

func runLive(ctx context.Context, cfg *config.Config, client *polymarket.Client, store *storage.SQLiteStore, console *notify.Console, command, session string, detail bool) {
	sessions := engine.NewSessionManager(client, store)

	switch command {
	case "create":
		id, err := sessions.Create(ctx, liveConfig(cfg))
		if err != nil {
			slog.Error("failed to create session", "err", err)
			os.Exit(1)
		}
		fmt.Printf("created session %s (%dd, $%.0f per strategy)\n",
			id, cfg.Simulation.Days, cfg.Simulation.InitialCapital)

	case "advance":
		requireSession(session)
		result, err := sessions.Advance(ctx, session)
		if err != nil {
			slog.Error("advance failed", "session", session, "err", err)
			os.Exit(1)
		}
		console.PrintAdvance(session, result)

	case "status":
		requireSession(session)
		status, err := sessions.Status(ctx, session, detail)
		if err != nil {
			slog.Error("status failed", "session", session, "err", err)
			os.Exit(1)
		}
		console.PrintSessionStatus(status)

	case "list":
		ids, err := store.ListActiveSessions(ctx)
		if err != nil {
			slog.Error("list failed", "err", err)
			os.Exit(1)
		}
		if len(ids) == 0 {
			fmt.Println("no active sessions")
			return
		}
		for _, id := range ids {
			status, err := sessions.Status(ctx, id, false)
			if err != nil {
				slog.Warn("skipping unreadable session", "session", id, "err", err)
				continue
			}
			sess := status.Session
			fmt.Printf("%s  ends %s  cursor %s\n",
				id,
				sess.EndsAt.Format("2006-01-02 15:04"),
				sess.Cursor.Format("2006-01-02 15:04:05"))
		}

	case "discard":
		requireSession(session)
		if err := sessions.Discard(ctx, session); err != nil {
			slog.Error("discard failed", "session", session, "err", err)
			os.Exit(1)
		}
		fmt.Printf("archived session %s\n", session)

	default:
		slog.Error("unknown live command", "command", command)
		os.Exit(2)
	}
}

// runServe keeps every active session advancing on the configured cron
// cadence and, when configured, exposes Prometheus metrics over HTTP.
func runServe(ctx context.Context, cfg *config.Config, client *polymarket.Client, store *storage.SQLiteStore) {
	metrics := engine.NewMetrics()
	sessions := engine.NewSessionManager(client, store, engine.WithMetrics(metrics))

	sched := scheduler.New(ctx, sessions)
	if err := sched.Register(cfg.Scheduler.AdvanceCron); err != nil {
		slog.Error("failed to register advance task", "err", err)
		os.Exit(1)
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	// One pass right away so a restart catches up without waiting for the
	// next cron slot.
	sched.RunNow()
	sched.Start()
	defer sched.Stop()

	slog.Info("papersim serving", "cron", cfg.Scheduler.AdvanceCron)
	<-ctx.Done()
	slog.Info("papersim stopped cleanly")
}

func requireSession(id string) {
	if id == "" {
		slog.Error("missing -session flag")
		os.Exit(2)
	}
}
