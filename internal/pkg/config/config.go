package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	Telegram TelegramConfig `yaml:"telegram"`
	Engine   EngineConfig   `yaml:"engine"`
	Account  AccountConfig  `yaml:"account"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	ChatID         int64   `yaml:"chat_id"`
	AllowedUserIDs []int64 `yaml:"allowed_user_ids"` // optional: restrict commands to these users
	UpdateTimeout  int     `yaml:"update_timeout"`
}

type EngineConfig struct {
	MinValuePercent      float64 `yaml:"min_value_percent"`       // minimum EV percent to alert on (default: 2.0)
	KellyFraction        float64 `yaml:"kelly_fraction"`          // fractional Kelly multiplier (default: 0.25)
	DefaultPromoCap      float64 `yaml:"default_promo_cap"`       // promo stake cap when the observation has none (default: 10)
	ExchangeCommission   float64 `yaml:"exchange_commission"`     // exchange lay commission (default: 0.05)
	MaxCoverLossFraction float64 `yaml:"max_cover_loss_fraction"` // acceptable qualifying loss vs back stake (default: 0.05)
	HighConfidenceScore  float64 `yaml:"high_confidence_score"`   // fuzzy score to auto-accept a mapping (default: 85)
	ReviewScore          float64 `yaml:"review_score"`            // fuzzy score to accept with human review (default: 60)
}

type AccountConfig struct {
	Operator        string  `yaml:"operator"`
	InitialBankroll float64 `yaml:"initial_bankroll"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()
	config.applyEnvOverrides()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.MinValuePercent == 0 {
		c.Engine.MinValuePercent = 2.0
	}
	if c.Engine.KellyFraction == 0 {
		c.Engine.KellyFraction = 0.25
	}
	if c.Engine.DefaultPromoCap == 0 {
		c.Engine.DefaultPromoCap = 10
	}
	if c.Engine.ExchangeCommission == 0 {
		c.Engine.ExchangeCommission = 0.05
	}
	if c.Engine.MaxCoverLossFraction == 0 {
		c.Engine.MaxCoverLossFraction = 0.05
	}
	if c.Engine.HighConfidenceScore == 0 {
		c.Engine.HighConfidenceScore = 85
	}
	if c.Engine.ReviewScore == 0 {
		c.Engine.ReviewScore = 60
	}
	if c.Telegram.UpdateTimeout == 0 {
		c.Telegram.UpdateTimeout = 60
	}
	if c.Account.Operator == "" {
		c.Account.Operator = "default"
	}
	if c.Account.InitialBankroll == 0 {
		c.Account.InitialBankroll = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// applyEnvOverrides lets secrets come from the environment instead of the
// yaml file, so the file can be committed without credentials.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
}
