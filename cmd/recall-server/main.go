// recall-server speaks the tool protocol on stdin/stdout: newline-
// delimited JSON-RPC envelopes in, one response per line out. Logs go
// to stderr so they never interleave with protocol output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/cache"
	"dev.helix.recall/internal/config"
	"dev.helix.recall/internal/events"
	"dev.helix.recall/internal/mcp"
	"dev.helix.recall/internal/memory"
	"dev.helix.recall/internal/storage"
	"dev.helix.recall/internal/vectorizer"
)

var (
	envFile     = flag.String("env-file", "", "Path to a .env file to load before reading configuration")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		// Best-effort: a local .env is a convenience, not a requirement.
		_ = godotenv.Load()
	}

	cfg := config.Load()

	if *showVersion {
		fmt.Printf("%s %s\n", cfg.Server.Name, cfg.Server.Version)
		return
	}

	logger := newLogger(cfg.Monitoring)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited with error")
	}
}

func newLogger(cfg config.MonitoringConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx, cfg.Vectorizer.Dimensions); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var shared *cache.RedisLevel
	if cfg.Redis.Host != "" {
		shared = cache.NewRedisLevel(cfg.Redis)
		if err := shared.Ping(ctx); err != nil {
			// The shared level is an accelerator; the local level carries
			// the cache until Redis comes back.
			logger.WithError(err).Warn("shared cache unavailable, continuing with local cache only")
		}
	}
	tiered := cache.NewTieredCache(shared, cfg.Cache.LocalMaxEntries, logger)
	defer tiered.Close()

	var vec vectorizer.Client
	if cfg.Vectorizer.BaseURL != "" {
		vec = vectorizer.NewHTTPClient(cfg.Vectorizer, logger)
	} else {
		logger.Warn("no vectorizer endpoint configured, using deterministic hash embeddings")
		vec = vectorizer.NewStatic(cfg.Vectorizer.Dimensions)
	}

	hub := events.NewHub(cfg.Stream.BufferSize)
	defer hub.Close()

	service := memory.NewService(store, vec, tiered, hub, cfg.Cache, logger)

	if !service.Ready(ctx) {
		logger.Warn("dependencies not ready at startup, serving anyway")
	}

	dispatcher := mcp.NewDispatcher(service, cfg.Server.Name, cfg.Server.Version, logger)
	server := mcp.NewServer(dispatcher, os.Stdin, os.Stdout, logger)

	logger.WithFields(logrus.Fields{
		"name":    cfg.Server.Name,
		"version": cfg.Server.Version,
	}).Info("serving tool protocol on stdio")

	return server.Serve(ctx)
}
