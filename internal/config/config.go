package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// ServiceType identifies which concrete connector implementation and auth
// strategy apply to a configured service.
type ServiceType string

const (
	ServiceSonarr      ServiceType = "sonarr"
	ServiceRadarr      ServiceType = "radarr"
	ServiceLidarr      ServiceType = "lidarr"
	ServiceQBittorrent ServiceType = "qbittorrent"
	ServiceSABnzbd     ServiceType = "sabnzbd"
	ServiceJellyfin    ServiceType = "jellyfin"
)

// KnownServiceTypes lists every service type the factory can construct.
func KnownServiceTypes() []ServiceType {
	return []ServiceType{
		ServiceSonarr, ServiceRadarr, ServiceLidarr,
		ServiceQBittorrent, ServiceSABnzbd, ServiceJellyfin,
	}
}

// ValidateServiceType returns an error for unknown service type tags.
func ValidateServiceType(t string) error {
	for _, known := range KnownServiceTypes() {
		if string(known) == t {
			return nil
		}
	}
	return fmt.Errorf("unknown service type: %q", t)
}

// Duration is a wrapper around time.Duration that can be marshaled to/from JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ServiceConfig is the persisted identity and credentials for one remote
// service instance. Only the config is ever persisted; live connectors are
// rebuilt from it at startup.
type ServiceConfig struct {
	ID       string      `json:"id" mapstructure:"id" validate:"required"`
	Name     string      `json:"name" mapstructure:"name" validate:"required"`
	Type     ServiceType `json:"type" mapstructure:"type" validate:"required"`
	URL      string      `json:"url" mapstructure:"url" validate:"required,url"`
	APIKey   string      `json:"api_key,omitempty" mapstructure:"api-key"`
	Username string      `json:"username,omitempty" mapstructure:"username"`
	Password string      `json:"password,omitempty" mapstructure:"password"`
	Enabled  bool        `json:"enabled" mapstructure:"enabled"`
	ProxyURL string      `json:"proxy_url,omitempty" mapstructure:"proxy-url"`
	Timeout  Duration    `json:"timeout,omitempty" mapstructure:"timeout"`

	Created time.Time `json:"created,omitempty" mapstructure:"created"`
	Updated time.Time `json:"updated,omitempty" mapstructure:"updated"`
}

// RequestTimeout returns the per-service HTTP timeout, falling back to the
// default when unset.
func (s *ServiceConfig) RequestTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout.Duration()
	}
	return DefaultRequestTimeout
}

// Weekday tags used by quiet hours day sets. Lowercase three-letter form.
const (
	DayMon = "mon"
	DayTue = "tue"
	DayWed = "wed"
	DayThu = "thu"
	DayFri = "fri"
	DaySat = "sat"
	DaySun = "sun"
)

// QuietHoursPreset selects a default day set for a quiet hours schedule.
type QuietHoursPreset string

const (
	PresetWeeknights QuietHoursPreset = "weeknights"
	PresetWeekends   QuietHoursPreset = "weekends"
	PresetEveryday   QuietHoursPreset = "everyday"
	PresetCustom     QuietHoursPreset = "custom"
)

// DefaultDays returns the preset's default day set. Custom (and unknown)
// presets default to every day so an empty schedule never means "never".
func (p QuietHoursPreset) DefaultDays() []string {
	switch p {
	case PresetWeeknights:
		return []string{DaySun, DayMon, DayTue, DayWed, DayThu}
	case PresetWeekends:
		return []string{DayFri, DaySat}
	default:
		return []string{DayMon, DayTue, DayWed, DayThu, DayFri, DaySat, DaySun}
	}
}

// QuietHoursConfig is a per-category recurring weekly window during which
// non-critical notifications are deferred.
type QuietHoursConfig struct {
	Enabled bool             `json:"enabled" mapstructure:"enabled"`
	Start   string           `json:"start" mapstructure:"start"` // "HH:mm"
	End     string           `json:"end" mapstructure:"end"`     // "HH:mm"
	Days    []string         `json:"days" mapstructure:"days"`
	Preset  QuietHoursPreset `json:"preset" mapstructure:"preset"`
}

// NotificationConfig holds the user-facing notification toggles.
type NotificationConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Per-category toggles
	Downloads     bool `json:"downloads" mapstructure:"downloads"`
	Requests      bool `json:"requests" mapstructure:"requests"`
	ServiceHealth bool `json:"service_health" mapstructure:"service-health"`

	// CriticalBypass lets offline alerts skip quiet hours entirely.
	CriticalBypass bool `json:"critical_bypass" mapstructure:"critical-bypass"`

	// QuietHours maps category name to its schedule.
	QuietHours map[string]*QuietHoursConfig `json:"quiet_hours,omitempty" mapstructure:"quiet-hours"`

	// WebhookURL receives notification payloads as JSON POSTs when set.
	WebhookURL string `json:"webhook_url,omitempty" mapstructure:"webhook-url" validate:"omitempty,url"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename" mapstructure:"filename"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"` // megabytes
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`
	MaxAge        int    `json:"max_age" mapstructure:"max-age"` // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
	JSONFormat    bool   `json:"json_format" mapstructure:"json-format"`
}

// Config represents the main configuration structure
type Config struct {
	Listen   string           `json:"listen" mapstructure:"listen"`
	DataDir  string           `json:"data_dir" mapstructure:"data-dir"`
	Services []*ServiceConfig `json:"services" mapstructure:"services" validate:"dive"`

	// Health monitoring
	HealthCheckInterval Duration `json:"health_check_interval,omitempty" mapstructure:"health-check-interval"`

	Notifications *NotificationConfig `json:"notifications,omitempty" mapstructure:"notifications"`
	Logging       *LogConfig          `json:"logging,omitempty" mapstructure:"logging"`
}

// DefaultConfig returns a configuration with sane defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":8484",
		DataDir: defaultDataDir(),
		Notifications: &NotificationConfig{
			Enabled:       true,
			Downloads:     true,
			Requests:      true,
			ServiceHealth: true,
			QuietHours:    map[string]*QuietHoursConfig{},
		},
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    true,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".arrdeck"
	}
	return filepath.Join(home, ".arrdeck")
}

var validate = validator.New()

// Validate checks structural validity of the configuration: required service
// fields, URL shapes, known service types, duplicate ids.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if err := ValidateServiceType(string(svc.Type)); err != nil {
			return fmt.Errorf("service %q: %w", svc.ID, err)
		}
		if _, dup := seen[svc.ID]; dup {
			return fmt.Errorf("duplicate service id: %q", svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}
	return nil
}

// HealthInterval returns the configured health check interval or the default.
func (c *Config) HealthInterval() time.Duration {
	if c.HealthCheckInterval > 0 {
		return c.HealthCheckInterval.Duration()
	}
	return HealthCheckInterval
}
