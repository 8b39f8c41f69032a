package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirrorstack/papersim/config"
	"github.com/mirrorstack/papersim/internal/adapters/notify"
	"github.com/mirrorstack/papersim/internal/adapters/polymarket"
	"github.com/mirrorstack/papersim/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	backtest := flag.Bool("backtest", false, "run a single-window backtest and exit")
	multiPeriod := flag.Bool("multiperiod", false, "run a multi-period backtest and exit")
	live := flag.String("live", "", "live session command: create|advance|status|list|discard")
	session := flag.String("session", "", "session id for live advance/status/discard")
	serve := flag.Bool("serve", false, "run the background advancer (+metrics endpoint if configured)")
	detail := flag.Bool("detail", false, "include portfolios and activity log in live status")

	days := flag.Int("days", 0, "backtest window / live session duration in days (overrides config)")
	capital := flag.Float64("capital", 0, "initial capital per strategy (overrides config)")
	periods := flag.Int("periods", 0, "number of multi-period windows (overrides config)")
	gap := flag.Int("gap", 0, "gap between windows in days (overrides config)")
	category := flag.String("category", "", "restrict to one market category (overrides config)")

	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	applyFlagOverrides(cfg, *days, *capital, *periods, *gap, *category)

	client := polymarket.NewClient(cfg.API.DataBase, cfg.API.GammaBase)
	console := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *backtest:
		runBacktest(ctx, cfg, client, console)
	case *multiPeriod:
		runMultiPeriod(ctx, cfg, client, console)
	case *live != "" || *serve:
		store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()

		if *serve {
			runServe(ctx, cfg, client, store)
			return
		}
		runLive(ctx, cfg, client, store, console, *live, *session, *detail)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func applyFlagOverrides(cfg *config.Config, days int, capital float64, periods, gap int, category string) {
	if days > 0 {
		cfg.Simulation.Days = days
	}
	if capital > 0 {
		cfg.Simulation.InitialCapital = capital
	}
	if periods > 0 {
		cfg.Simulation.Periods = periods
	}
	if gap > 0 {
		cfg.Simulation.GapDays = gap
	}
	if category != "" {
		cfg.Simulation.Category = category
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
