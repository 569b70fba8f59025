package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jit-bench/dashboard/api"
	"github.com/jit-bench/dashboard/cache"
	"github.com/jit-bench/dashboard/client"
	"github.com/jit-bench/dashboard/config"
	"github.com/jit-bench/dashboard/ingest"
	"github.com/jit-bench/dashboard/service"
	"github.com/jit-bench/dashboard/storage"
	"github.com/jit-bench/dashboard/sysinfo"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	logLevel := flag.String("log-level", "", "Override the configured log level")
	flag.Parse()

	logger := logrus.New()

	if err := run(*configPath, *logLevel, logger); err != nil {
		logger.WithError(err).Fatal("Dashboard failed")
	}
}

func run(configPath, logLevel string, logger *logrus.Logger) error {
	cfg, err := config.LoadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := configureLogging(logger, &cfg.Logging); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	var fetchCache *cache.FetchCache
	if cfg.Cache.Enabled {
		store, err := newStore(cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		fetchCache = cache.New(store, cfg.Cache.Namespace, logger,
			cache.WithMetrics(cache.NewMetrics(registry)))
	} else {
		logger.Warn("Fetch cache disabled, every request hits the source")
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		return err
	}

	collector, err := sysinfo.NewCollector()
	if err != nil {
		logger.WithError(err).Warn("System info collection unavailable")
	}

	hub := api.NewHub(logger)
	svc := service.NewService(source, fetchCache, &cfg.Cache, hub, logger)
	server := api.NewServer(&cfg.Server, svc, hub, collector, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"addr":   fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"source": cfg.Source.Mode,
	}).Info("Dashboard started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, shutting down...")
	return server.Stop()
}

// configureLogging applies the configured level and format to the root
// logger.
func configureLogging(logger *logrus.Logger, cfg *config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// newStore builds the cache store backend named by the configuration.
func newStore(cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.Cache.Backend {
	case "memory", "":
		return storage.NewMemoryStore(), nil

	case "file":
		store, err := storage.NewFileStore(cfg.Cache.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file store: %w", err)
		}
		return store, nil

	case "postgres":
		store := storage.NewPostgresStore(&cfg.Cache.Postgres, logger)
		if err := store.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to postgres store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Cache.Backend)
	}
}

// newSource builds the dataset source: an upstream results API or a local
// pyperf results tree.
func newSource(cfg *config.Config, logger *logrus.Logger) (client.Source, error) {
	switch cfg.Source.Mode {
	case "http", "":
		source, err := client.NewResultsClient(&cfg.Source, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create results client: %w", err)
		}
		return source, nil

	case "local":
		return ingest.NewLoader(&cfg.Source, logger), nil

	default:
		return nil, fmt.Errorf("unknown source mode: %s", cfg.Source.Mode)
	}
}
