package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obstacle-panel/backend/internal/aggregator"
	"github.com/obstacle-panel/backend/internal/commandapi"
	"github.com/obstacle-panel/backend/internal/config"
	"github.com/obstacle-panel/backend/internal/dispatcher"
	"github.com/obstacle-panel/backend/internal/eventsource"
	httpapi "github.com/obstacle-panel/backend/internal/http"
	"github.com/obstacle-panel/backend/internal/http/handlers"
	"github.com/obstacle-panel/backend/internal/logging"
	"github.com/obstacle-panel/backend/internal/metrics"
	"github.com/obstacle-panel/backend/internal/poller"
	"github.com/obstacle-panel/backend/internal/snapshot"
	"github.com/obstacle-panel/backend/internal/storage"
)

type blobStore interface {
	snapshot.Store
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize snapshot store", "backend", cfg.CacheBackend, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	source, closeSource, err := openEventSource(ctx, cfg, logger.With("component", "eventsource"))
	if err != nil {
		logger.Error("failed to initialize event source", "source", cfg.EventSource, "err", err)
		os.Exit(1)
	}
	defer closeSource()

	panelMetrics := metrics.New()
	cache := snapshot.New(store, cfg.LEDCount, logger.With("component", "snapshot"))
	apiClient := commandapi.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout)

	viewPoller := poller.New(
		eventsource.Fallback(source, logger.With("component", "eventsource"), eventsource.WithFailureHook(panelMetrics.FetchFailed)),
		aggregator.New(cfg.ViewLEDCount),
		poller.Config{Interval: cfg.PollInterval, Window: cfg.EventWindow, FetchTimeout: cfg.APITimeout},
		logger.With("component", "poller"),
	)
	viewPoller.SetRecorder(panelMetrics)

	opts := []dispatcher.Option{
		dispatcher.WithTimeout(cfg.APITimeout),
		dispatcher.WithRecorder(panelMetrics),
	}
	if cfg.MQTTBroker != "" {
		mirror, err := commandapi.NewMQTTMirror(commandapi.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTCommandTopic,
		}, logger.With("component", "mqtt"))
		if err != nil {
			logger.Warn("mqtt mirror disabled", "broker", cfg.MQTTBroker, "err", err)
		} else {
			defer mirror.Close()
			opts = append(opts, dispatcher.WithMirror(mirror))
			if cfg.MQTTEventTopic != "" {
				if err := mirror.SubscribeEvents(cfg.MQTTEventTopic, viewPoller.TriggerRefresh); err != nil {
					logger.Warn("device event subscription failed", "topic", cfg.MQTTEventTopic, "err", err)
				}
			}
		}
	}
	commands := dispatcher.New(cache, apiClient, cfg.LEDCount, logger.With("component", "dispatcher"), opts...)
	defer commands.Wait()
	exporter := commandapi.NewExporter(apiClient, logger.With("component", "export"))

	go viewPoller.Run(ctx)

	api := handlers.New(viewPoller, commands, cache, exporter, logger, cfg.FrontendDist)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api, panelMetrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting",
		"addr", httpServer.Addr,
		"event_source", cfg.EventSource,
		"cache_backend", cfg.CacheBackend,
		"poll_interval", cfg.PollInterval.String(),
	)
	if err := httpapi.RunServer(ctx, httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (blobStore, error) {
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return storage.NewMemoryStore(), nil
	case config.CacheRedis:
		store, err := storage.NewRedisStore(ctx, cfg.RedisAddr, "obstacle-panel:")
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		repo, err := storage.New(ctx, cfg.DBPath, logger.With("component", "storage"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func openEventSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (eventsource.Source, func(), error) {
	if cfg.EventSource == config.EventSourcePostgres {
		if cfg.PostgresURL == "" {
			return nil, nil, errors.New("POSTGRES_URL is required when EVENT_SOURCE=postgres")
		}
		pg, err := eventsource.NewPostgresSource(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return eventsource.NewHTTPSource(cfg.APIBaseURL, cfg.APIToken, cfg.APITimeout, logger), func() {}, nil
}
