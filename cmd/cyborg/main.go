package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/cyborgbet/cyborgbet/internal/bot"
	"github.com/cyborgbet/cyborgbet/internal/engine/matcher"
	"github.com/cyborgbet/cyborgbet/internal/ops"
	"github.com/cyborgbet/cyborgbet/internal/pkg/config"
	"github.com/cyborgbet/cyborgbet/internal/pkg/logging"
	"github.com/cyborgbet/cyborgbet/internal/storage"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// .env is optional; env vars still override the config file either way.
	_ = godotenv.Load()

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	var configPath string
	flag.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(&cfg.Logging, "cyborg")
	slog.Info("Config loaded", "path", configPath)

	if cfg.Telegram.BotToken == "" {
		log.Fatal("Telegram bot token is required. Set telegram.bot_token in config or TELEGRAM_BOT_TOKEN env var")
	}
	if cfg.Postgres.DSN == "" {
		log.Fatal("Postgres DSN is required. Set postgres.dsn in config or POSTGRES_DSN env var")
	}

	store, err := storage.Open(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("error closing storage", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	account, err := store.EnsureAccount(ctx, cfg.Account.Operator, decimal.NewFromFloat(cfg.Account.InitialBankroll))
	if err != nil {
		log.Fatalf("Failed to ensure account: %v", err)
	}
	slog.Info("Account ready",
		"operator", account.OperatorName,
		"bankroll", account.CurrentBankroll.StringFixed(2),
		"trust_score", account.TrustScore)

	m := matcher.New(store, cfg.Engine.HighConfidenceScore, cfg.Engine.ReviewScore)
	svc := ops.New(store, m, &cfg.Engine)

	tgBot, err := bot.New(&cfg.Telegram, svc)
	if err != nil {
		log.Fatalf("Failed to start telegram bot: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, stopping...")
		cancel()
	}()

	if err := tgBot.Run(ctx); err != nil {
		log.Fatalf("Bot stopped with error: %v", err)
	}
	slog.Info("Shutdown complete")
}
