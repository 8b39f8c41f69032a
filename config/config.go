package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full papersim configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// SimulationConfig holds the defaults shared by backtests and live
// sessions. Command-line flags override these per run.
type SimulationConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	SlippagePct    float64 `yaml:"slippage_pct"`
	CooldownHours  float64 `yaml:"cooldown_hours"`
	PerTradeCapPct float64 `yaml:"per_trade_cap_pct"`
	Days           int     `yaml:"days"`
	Periods        int     `yaml:"periods"`
	GapDays        int     `yaml:"gap_days"`
	Category       string  `yaml:"category"`
}

// APIConfig holds the Polymarket API base URLs.
type APIConfig struct {
	DataBase  string `yaml:"data_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controls where sessions are persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"
}

// SchedulerConfig controls the background advance cadence in serve mode.
type SchedulerConfig struct {
	AdvanceCron string `yaml:"advance_cron"` // standard 5-field cron spec
}

// MetricsConfig controls the Prometheus endpoint in serve mode.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // e.g. ":9090"; empty disables the endpoint
}

// LogConfig controls log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Env values
// override matching YAML keys.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PAPERSIM_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PAPERSIM_DATA_BASE"); v != "" {
		cfg.API.DataBase = v
	}
	if v := os.Getenv("PAPERSIM_GAMMA_BASE"); v != "" {
		cfg.API.GammaBase = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Simulation.InitialCapital <= 0 {
		cfg.Simulation.InitialCapital = 1000
	}
	if cfg.Simulation.SlippagePct <= 0 {
		cfg.Simulation.SlippagePct = 0.04
	}
	if cfg.Simulation.CooldownHours <= 0 {
		cfg.Simulation.CooldownHours = 1
	}
	if cfg.Simulation.PerTradeCapPct <= 0 {
		cfg.Simulation.PerTradeCapPct = 0.10
	}
	if cfg.Simulation.Days <= 0 {
		cfg.Simulation.Days = 7
	}
	if cfg.Simulation.Periods <= 0 {
		cfg.Simulation.Periods = 3
	}
	if cfg.Simulation.GapDays <= 0 {
		cfg.Simulation.GapDays = 1
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "papersim.db"
	}
	if cfg.Scheduler.AdvanceCron == "" {
		cfg.Scheduler.AdvanceCron = "*/15 * * * *"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
