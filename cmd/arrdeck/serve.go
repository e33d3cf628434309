package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/register"
	"arrdeck-go/internal/events"
	"arrdeck-go/internal/health"
	"arrdeck-go/internal/logs"
	"arrdeck-go/internal/notify"
	"arrdeck-go/internal/server"
	"arrdeck-go/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var (
		configPath string
		listen     string
		dataDir    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregation daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, listen, dataDir, logLevel)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", "", "data directory (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	return cmd
}

func runServe(ctx context.Context, configPath, listen, dataDir, logLevel string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config comes first so the logger can honor its settings. A missing
	// config file is not an error: defaults apply and watching is skipped.
	var (
		loader *config.Loader
		cfg    *config.Config
	)

	if configPath == "" {
		configPath = filepath.Join(config.DefaultConfig().DataDir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		loader, err = config.NewLoader(configPath, zap.NewNop())
		if err != nil {
			return err
		}
		cfg, err = loader.Load()
		if err != nil {
			return err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if listen != "" {
		cfg.Listen = listen
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.EnsureDataDir(cfg); err != nil {
		return err
	}

	logger, err := logs.New(cfg.Logging, config.LogDir(cfg))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if loader != nil {
		loader.SetLogger(logger.Named("config"))
	}

	logger.Info("Starting arrdeck",
		zap.String("version", version),
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", cfg.DataDir))

	store, err := storage.NewManager(cfg.DataDir, logger.Named("storage").Sugar())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	bus := events.NewBus()
	defer bus.Close()

	factory := connector.NewFactory(logger.Named("factory"))
	register.Defaults(factory)

	registry := connector.NewManager(factory, store, logger.Named("registry"))
	defer registry.Dispose()
	registry.SetEventBus(bus)

	if err := registry.LoadSavedServices(ctx); err != nil {
		logger.Warn("Failed to load saved services", zap.Error(err))
	}
	applyConfiguredServices(ctx, registry, cfg, logger)

	settings := &loaderSettings{loader: loader, fallback: cfg}

	hub := notify.NewHub(logger.Named("ws"))
	defer hub.Close()

	pushers := []notify.Pusher{hub}
	if cfg.Notifications != nil && cfg.Notifications.WebhookURL != "" {
		pushers = append(pushers, notify.NewWebhookPusher(cfg.Notifications.WebhookURL, logger.Named("webhook")))
	}
	pusher := notify.NewMultiPusher(logger.Named("notify"), pushers...)

	notifier := notify.NewService(pusher, store, settings, logger.Named("notify"))
	defer notifier.Close()
	notifier.SetEventBus(bus)

	// Registry and health transitions stream to connected app clients so
	// they track state without polling. Hub only: the user's webhook gets
	// notifications, not raw state changes.
	stream := notify.StartEventStream(bus, hub, logger.Named("events"))
	defer stream.Close()

	// Deferred summaries carried over from a previous run flush now if
	// their window has already ended.
	notifier.FlushDueSummaries(ctx)

	monitor := health.NewMonitor(registry, notifier, bus, cfg.HealthInterval(), logger.Named("health"))
	monitor.Start(ctx)
	defer monitor.Stop()

	if loader != nil {
		defer loader.Stop()
		err = loader.StartWatching(func(next *config.Config) error {
			applyConfiguredServices(ctx, registry, next, logger)
			notifier.OnQuietHoursChanged(ctx)
			return nil
		})
		if err != nil {
			logger.Warn("Config watching unavailable", zap.Error(err))
		}
	}

	srv := server.New(cfg, registry, monitor, notifier, hub, loader, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

// applyConfiguredServices upserts every enabled service from the config file
// into the registry. Per-service failures are logged and skipped so one bad
// entry does not block the rest.
func applyConfiguredServices(ctx context.Context, registry *connector.Manager, cfg *config.Config, logger *zap.Logger) {
	for _, svc := range cfg.Services {
		if !svc.Enabled {
			continue
		}
		if _, err := registry.AddConnector(ctx, svc); err != nil {
			logger.Error("Failed to register configured service",
				zap.String("id", svc.ID),
				zap.String("type", string(svc.Type)),
				zap.Error(err))
		}
	}
}

// loaderSettings adapts the config loader to the notification settings
// source. With no loader (no config file) the startup snapshot is used.
type loaderSettings struct {
	loader   *config.Loader
	fallback *config.Config
}

func (s *loaderSettings) NotificationSettings() *config.NotificationConfig {
	if s.loader != nil {
		if cfg := s.loader.GetConfig(); cfg != nil {
			return cfg.Notifications
		}
	}
	return s.fallback.Notifications
}
