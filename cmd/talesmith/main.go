package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talesmith-ai/talesmith/internal/config"
	"github.com/talesmith-ai/talesmith/internal/llm"
	"github.com/talesmith-ai/talesmith/internal/logger"
	"github.com/talesmith-ai/talesmith/internal/models"
	"github.com/talesmith-ai/talesmith/internal/session"
	"github.com/talesmith-ai/talesmith/internal/web"
)

const apiKeyEnv = "GROQ_API_KEY"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error, none")
	printURL := flag.Bool("print-url", true, "print the websocket URL on startup")
	flag.Parse()

	// A .env next to the binary is the usual place for the API key during
	// development; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Global().Close()

	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("%s is not set", apiKeyEnv)
	}

	client, err := llm.NewClient(apiKey, cfg.BaseURL, time.Duration(cfg.ProviderTimeoutSecs)*time.Second)
	if err != nil {
		return err
	}

	registry := models.NewRegistry(client, models.Options{
		MinCompletionTokens: cfg.MinCompletionTokens,
		DefaultModels:       []string{"llama-3.3-70b-versatile", cfg.DefaultModel},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refreshCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	registry.Refresh(refreshCtx)
	cancel()

	store, err := session.NewStorage(cfg.SessionsDir)
	if err != nil {
		logger.Warn("Session persistence disabled: %v", err)
		store = nil
	}

	broker := web.NewBroker(cfg, client, registry, store)
	server, err := web.NewServer(cfg.ListenAddr, broker)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	if *printURL {
		fmt.Println(server.URL())
	}

	<-ctx.Done()
	return server.Stop()
}
