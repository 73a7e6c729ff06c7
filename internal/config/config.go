package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Scheduler struct {
		ScanInterval         time.Duration `yaml:"scan_interval"`
		MatchCooldown        time.Duration `yaml:"match_cooldown"`
		MatchTimeout         time.Duration `yaml:"match_timeout"`
		MinBudgetRatio       float64       `yaml:"min_budget_ratio"`
		MaxConcurrentMatches int           `yaml:"max_concurrent_matches"`
	} `yaml:"scheduler"`
	Treasury struct {
		Enabled       bool    `yaml:"enabled"`
		ProfitTarget  float64 `yaml:"profit_target"`
		RetainBalance float64 `yaml:"retain_balance"`
		StateFile     string  `yaml:"state_file"`
	} `yaml:"treasury"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	ArenaService struct {
		BaseURL      string        `yaml:"base_url"`
		APIKey       string        `yaml:"api_key"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"arena_service"`
	Simulation struct {
		SeedFile      string        `yaml:"seed_file"`
		MatchDuration time.Duration `yaml:"match_duration"`
	} `yaml:"simulation"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields an all-default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"TELEGRAM_BOT_TOKEN":    &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":      &c.Telegram.ChatID,
		"ARENA_SERVICE_URL":     &c.ArenaService.BaseURL,
		"ARENA_SERVICE_API_KEY": &c.ArenaService.APIKey,
		"NATS_URL":              &c.NATS.URL,
		"SQLITE_PATH":           &c.Database.SQLitePath,
		"HTTP_ADDR":             &c.HTTP.Addr,
		"SEED_FILE":             &c.Simulation.SeedFile,
		"HTTPS_PROXY":           &c.Proxy,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SCAN_INTERVAL":  &c.Scheduler.ScanInterval,
		"MATCH_COOLDOWN": &c.Scheduler.MatchCooldown,
		"MATCH_TIMEOUT":  &c.Scheduler.MatchTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = d
	}

	if v := os.Getenv("TREASURY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env TREASURY_ENABLED: %w", err)
		}
		c.Treasury.Enabled = enabled
	}
	if v := os.Getenv("PROFIT_TARGET"); v != "" {
		target, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env PROFIT_TARGET: %w", err)
		}
		c.Treasury.ProfitTarget = target
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.ScanInterval == 0 {
		c.Scheduler.ScanInterval = 10 * time.Second
	}
	if c.Scheduler.MatchCooldown == 0 {
		c.Scheduler.MatchCooldown = 30 * time.Second
	}
	if c.Scheduler.MatchTimeout == 0 {
		c.Scheduler.MatchTimeout = 5 * time.Minute
	}
	if c.Scheduler.MinBudgetRatio == 0 {
		c.Scheduler.MinBudgetRatio = 2
	}
	if c.Scheduler.MaxConcurrentMatches == 0 {
		c.Scheduler.MaxConcurrentMatches = 1
	}
	if c.Treasury.StateFile == "" {
		c.Treasury.StateFile = "data/treasury_state.json"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/arena_pilot.db"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "arenapilot"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.ArenaService.PollInterval == 0 {
		c.ArenaService.PollInterval = 2 * time.Second
	}
	if c.Simulation.MatchDuration == 0 {
		c.Simulation.MatchDuration = 20 * time.Second
	}
}

// Validate checks that all set values are usable.
func (c *Config) Validate() error {
	if c.Scheduler.ScanInterval <= 0 {
		return fmt.Errorf("scheduler.scan_interval must be positive")
	}
	if c.Scheduler.MatchCooldown < 0 {
		return fmt.Errorf("scheduler.match_cooldown must not be negative")
	}
	if c.Scheduler.MatchTimeout <= 0 {
		return fmt.Errorf("scheduler.match_timeout must be positive")
	}
	if c.Scheduler.MinBudgetRatio <= 0 {
		return fmt.Errorf("scheduler.min_budget_ratio must be positive")
	}
	if c.Scheduler.MaxConcurrentMatches != 1 {
		return fmt.Errorf("scheduler.max_concurrent_matches must be 1, got %d", c.Scheduler.MaxConcurrentMatches)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if c.Treasury.Enabled {
		if c.Treasury.ProfitTarget <= 0 {
			return fmt.Errorf("treasury.profit_target must be positive")
		}
		if c.Treasury.RetainBalance < 0 || c.Treasury.RetainBalance >= c.Treasury.ProfitTarget {
			return fmt.Errorf("treasury.retain_balance must be in [0, profit_target)")
		}
	}
	if c.Simulation.MatchDuration < 0 {
		return fmt.Errorf("simulation.match_duration must not be negative")
	}
	return nil
}

// Simulated reports whether arenas are served in-process instead of by a remote service.
func (c *Config) Simulated() bool {
	return c.ArenaService.BaseURL == ""
}
