package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/mcoot/triviasync/internal/api"
	"github.com/mcoot/triviasync/internal/factory"
	"github.com/mcoot/triviasync/internal/services/generator"
	redisstorage "github.com/mcoot/triviasync/internal/storage/redis"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Build factory config from environment
	cfg := factory.Config{
		QuestionBankPath: os.Getenv("QUESTION_BANK"),
		Logger:           logger,
		StorageType:      os.Getenv("STORAGE_TYPE"),
		NATSURL:          os.Getenv("NATS_URL"),
	}

	// Configure Redis if storage type is redis
	if cfg.StorageType == factory.StorageTypeRedis {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	if delay := os.Getenv("GENERATION_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			logger.Error("invalid GENERATION_DELAY", slog.String("value", delay), slog.Any("error", err))
			os.Exit(1)
		}
		cfg.GeneratorConfig = generator.DefaultConfig()
		cfg.GeneratorConfig.BatchDelay = d
	}

	serverConfig := api.DefaultServerConfig()
	if addr := os.Getenv("TRIVIA_ADDR"); addr != "" {
		host, port, err := parseAddr(addr)
		if err != nil {
			logger.Error("invalid TRIVIA_ADDR", slog.String("value", addr), slog.Any("error", err))
			os.Exit(1)
		}
		serverConfig.Host = host
		serverConfig.Port = port
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create application factory
	app, err := factory.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("question bank loaded", slog.Int("questions", app.QuestionBank.Count()))

	server := api.NewServer(app.Handler(), serverConfig, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Keepalives and NATS inbound relay
	go func() {
		if err := app.Hub.Run(ctx); err != nil {
			logger.Error("push hub stopped", slog.String("error", err.Error()))
		}
	}()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// parseAddr splits a host:port listen address
func parseAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
