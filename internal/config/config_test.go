package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validService(id string) *ServiceConfig {
	return &ServiceConfig{
		ID:      id,
		Name:    id,
		Type:    ServiceSonarr,
		URL:     "http://localhost:8989",
		APIKey:  "key",
		Enabled: true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(c *Config) { c.Services = []*ServiceConfig{validService("a")} },
		},
		{
			name: "missing url fails",
			mutate: func(c *Config) {
				svc := validService("a")
				svc.URL = ""
				c.Services = []*ServiceConfig{svc}
			},
			wantErr: "validation failed",
		},
		{
			name: "malformed url fails",
			mutate: func(c *Config) {
				svc := validService("a")
				svc.URL = "not a url"
				c.Services = []*ServiceConfig{svc}
			},
			wantErr: "validation failed",
		},
		{
			name: "unknown service type fails",
			mutate: func(c *Config) {
				svc := validService("a")
				svc.Type = "plex"
				c.Services = []*ServiceConfig{svc}
			},
			wantErr: "unknown service type",
		},
		{
			name: "duplicate ids fail",
			mutate: func(c *Config) {
				c.Services = []*ServiceConfig{validService("a"), validService("a")}
			},
			wantErr: "duplicate service id",
		},
		{
			name: "bad webhook url fails",
			mutate: func(c *Config) {
				c.Notifications.WebhookURL = "::not-a-url"
			},
			wantErr: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateServiceType(t *testing.T) {
	for _, known := range KnownServiceTypes() {
		assert.NoError(t, ValidateServiceType(string(known)))
	}
	assert.Error(t, ValidateServiceType("plex"))
	assert.Error(t, ValidateServiceType(""))
}

func TestDuration_JSON(t *testing.T) {
	d := Duration(90 * time.Second)
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var parsed Duration
	require.NoError(t, json.Unmarshal([]byte(`"2m"`), &parsed))
	assert.Equal(t, 2*time.Minute, parsed.Duration())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &parsed))
	assert.Error(t, json.Unmarshal([]byte(`42`), &parsed))
}

func TestServiceConfig_RequestTimeout(t *testing.T) {
	svc := validService("a")
	assert.Equal(t, DefaultRequestTimeout, svc.RequestTimeout())

	svc.Timeout = Duration(5 * time.Second)
	assert.Equal(t, 5*time.Second, svc.RequestTimeout())
}

func TestConfig_HealthInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, HealthCheckInterval, cfg.HealthInterval())

	cfg.HealthCheckInterval = Duration(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, cfg.HealthInterval())
}

func TestLoadFromFile(t *testing.T) {
	t.Run("json config with defaults applied", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"listen": ":9000",
			"services": [
				{"id": "sonarr-1", "name": "sonarr", "type": "sonarr", "url": "http://localhost:8989", "api-key": "k", "enabled": true}
			]
		}`), 0o600))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Listen)
		require.Len(t, cfg.Services, 1)
		assert.Equal(t, "sonarr-1", cfg.Services[0].ID)
		assert.Equal(t, ServiceSonarr, cfg.Services[0].Type)
		assert.Equal(t, "k", cfg.Services[0].APIKey)
		require.NotNil(t, cfg.Notifications, "defaults fill unset sections")
		require.NotNil(t, cfg.Logging)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("yaml config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9001"
notifications:
  enabled: true
  downloads: true
  quiet-hours:
    downloads:
      enabled: true
      start: "22:00"
      end: "07:00"
      days: [mon, tue]
`), 0o600))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, ":9001", cfg.Listen)
		qh := cfg.Notifications.QuietHours["downloads"]
		require.NotNil(t, qh)
		assert.True(t, qh.Enabled)
		assert.Equal(t, "22:00", qh.Start)
		assert.Equal(t, []string{"mon", "tue"}, qh.Days)
	})

	t.Run("duration strings decode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
health-check-interval: "1m"
services:
  - id: sonarr-1
    name: sonarr
    type: sonarr
    url: "http://localhost:8989"
    api-key: k
    timeout: "30s"
`), 0o600))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.HealthInterval())
		require.Len(t, cfg.Services, 1)
		assert.Equal(t, 30*time.Second, cfg.Services[0].RequestTimeout())
	})

	t.Run("bad duration string fails load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`health-check-interval: "soon"`), 0o600))

		_, err := LoadFromFile(path)
		assert.ErrorContains(t, err, "invalid duration")
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
		assert.Error(t, err)
	})

	t.Run("invalid services fail load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"services": [{"id": "x", "name": "x", "type": "plex", "url": "http://localhost"}]
		}`), 0o600))

		_, err := LoadFromFile(path)
		assert.Error(t, err)
	})
}

func TestQuietHoursPreset_DefaultDays(t *testing.T) {
	assert.ElementsMatch(t, []string{"sun", "mon", "tue", "wed", "thu"}, PresetWeeknights.DefaultDays())
	assert.ElementsMatch(t, []string{"fri", "sat"}, PresetWeekends.DefaultDays())
	assert.Len(t, PresetEveryday.DefaultDays(), 7)
	assert.Len(t, PresetCustom.DefaultDays(), 7)
	assert.Len(t, QuietHoursPreset("").DefaultDays(), 7)
}
