package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader manages configuration loading, watching, and atomic updates.
type Loader struct {
	mu             sync.Mutex
	configPath     string
	config         *Config
	watcher        *fsnotify.Watcher
	skipNextReload bool
	onChange       func(*Config) error
	logger         *zap.Logger
	stopChan       chan struct{}
	stopOnce       sync.Once
}

// NewLoader creates a new configuration loader with file watching.
func NewLoader(configPath string, logger *zap.Logger) (*Loader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Loader{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}, nil
}

// SetLogger swaps the loader's logger. The loader is created before the real
// logger exists, so callers install it once logging is configured.
func (l *Loader) SetLogger(logger *zap.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// Load loads the initial configuration from file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := LoadFromFile(l.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration.
func (l *Loader) GetConfig() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.config
}

// StartWatching starts watching the configuration file for changes.
// The onChange callback is called when the configuration file changes.
func (l *Loader) StartWatching(onChange func(*Config) error) error {
	l.mu.Lock()
	l.onChange = onChange
	l.mu.Unlock()

	if err := l.watcher.Add(l.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	go l.watchLoop()

	l.logger.Info("Started watching configuration file",
		zap.String("path", l.configPath))

	return nil
}

// SkipNextReload suppresses the reload triggered by our own save.
func (l *Loader) SkipNextReload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipNextReload = true
}

func (l *Loader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				l.handleFileChange()
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("File watcher error", zap.Error(err))

		case <-l.stopChan:
			return
		}
	}
}

func (l *Loader) handleFileChange() {
	l.mu.Lock()
	if l.skipNextReload {
		l.skipNextReload = false
		l.mu.Unlock()
		l.logger.Debug("Skipping reload triggered by our own save")
		return
	}
	onChange := l.onChange
	l.mu.Unlock()

	// Editors often emit several writes for one save; give the file a
	// moment to settle before reading it.
	time.Sleep(100 * time.Millisecond)

	cfg, err := LoadFromFile(l.configPath)
	if err != nil {
		l.logger.Error("Failed to reload configuration after change",
			zap.String("path", l.configPath),
			zap.Error(err))
		return
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	l.logger.Info("Configuration reloaded",
		zap.String("path", l.configPath),
		zap.Int("services", len(cfg.Services)))

	if onChange != nil {
		if err := onChange(cfg); err != nil {
			l.logger.Error("Config change callback failed", zap.Error(err))
		}
	}
}

// Stop stops watching and releases the watcher.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.watcher != nil {
			_ = l.watcher.Close()
		}
	})
}

// LoadFromFile reads a configuration file (JSON or YAML, by extension) via
// viper and applies defaults for anything unset.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// decodeHooks extends viper's defaults with a hook for the Duration wrapper.
// mapstructure only knows how to decode strings into time.Duration, so "30s"
// in a config file would otherwise fail against Duration-typed fields.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		stringToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func stringToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(Duration(0))
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		parsed, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid duration format: %w", err)
		}
		return Duration(parsed), nil
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8484"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.Notifications == nil {
		cfg.Notifications = DefaultConfig().Notifications
	}
	if cfg.Notifications.QuietHours == nil {
		cfg.Notifications.QuietHours = map[string]*QuietHoursConfig{}
	}
	if cfg.Logging == nil {
		cfg.Logging = DefaultConfig().Logging
	}
}

// EnsureDataDir creates the data directory when missing.
func EnsureDataDir(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}
	return nil
}

// LogDir returns the directory used for rotated log files.
func LogDir(cfg *Config) string {
	return filepath.Join(cfg.DataDir, "logs")
}
