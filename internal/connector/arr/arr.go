// Package arr implements the connector for the *arr family of media managers
// (Sonarr, Radarr, Lidarr). They share the v3 API shape and differ only in
// the library resource they manage.
package arr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/types"
)

// resourceFor maps the service type to its library resource name.
func resourceFor(t config.ServiceType) (string, error) {
	switch t {
	case config.ServiceSonarr:
		return "series", nil
	case config.ServiceRadarr:
		return "movie", nil
	case config.ServiceLidarr:
		return "artist", nil
	default:
		return "", fmt.Errorf("not an arr service type: %q", t)
	}
}

// Connector adapts one arr instance. Auth is an API key header injected by
// the shared transport; there is no session handshake.
type Connector struct {
	*connector.Base
	resource    string
	initialized atomic.Bool
}

// New constructs an arr connector. Registered with the factory for the
// sonarr, radarr, and lidarr type tags.
func New(cfg *config.ServiceConfig, logger *zap.Logger) (connector.Connector, error) {
	resource, err := resourceFor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("service %s: %s requires an api key", cfg.ID, cfg.Type)
	}

	base, err := connector.NewBase(cfg, logger, nil)
	if err != nil {
		return nil, err
	}

	return &Connector{Base: base, resource: resource}, nil
}

type systemStatus struct {
	Version    string `json:"version"`
	AppName    string `json:"appName"`
	InstanceID string `json:"instanceName"`
}

type healthIssue struct {
	Source  string `json:"source"`
	Type    string `json:"type"` // "ok", "notice", "warning", "error"
	Message string `json:"message"`
}

// Initialize confirms the instance answers with valid credentials. Cached
// after the first success.
func (c *Connector) Initialize(ctx context.Context) error {
	if c.initialized.Load() {
		return nil
	}

	var status systemStatus
	if err := c.DoJSON(ctx, http.MethodGet, "/api/v3/system/status", nil, &status); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", c.Config().ID, err)
	}

	c.initialized.Store(true)
	c.Logger().Debug("Initialized arr connector", zap.String("version", status.Version))
	return nil
}

// GetVersion fetches the instance version from the system status endpoint.
func (c *Connector) GetVersion(ctx context.Context) (string, error) {
	var status systemStatus
	if err := c.DoJSON(ctx, http.MethodGet, "/api/v3/system/status", nil, &status); err != nil {
		return "", err
	}
	return status.Version, nil
}

// TestConnection runs the shared diagnostic sequence.
func (c *Connector) TestConnection(ctx context.Context) types.ConnectionResult {
	return c.Diagnose(ctx, c)
}

// GetHealth queries the arr health endpoint. Reported "error" issues mean
// degraded; transport failures classify per the shared rules.
func (c *Connector) GetHealth(ctx context.Context) types.SystemHealth {
	now := time.Now()

	var issues []healthIssue
	if err := c.DoJSON(ctx, http.MethodGet, "/api/v3/health", nil, &issues); err != nil {
		return types.SystemHealth{
			Status:      connector.HealthStatusFor(err),
			Message:     err.Error(),
			LastChecked: now,
		}
	}

	var errMessages []string
	details := make(map[string]string)
	for _, issue := range issues {
		if issue.Type == "error" {
			errMessages = append(errMessages, issue.Message)
		}
		if issue.Source != "" {
			details[issue.Source] = issue.Message
		}
	}

	if len(errMessages) > 0 {
		return types.SystemHealth{
			Status:      types.HealthDegraded,
			Message:     strings.Join(errMessages, "; "),
			LastChecked: now,
			Details:     details,
		}
	}

	return types.SystemHealth{
		Status:      types.HealthHealthy,
		LastChecked: now,
		Details:     details,
	}
}

type lookupItem struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// Search looks up library candidates by term.
func (c *Connector) Search(ctx context.Context, query string) ([]types.MediaItem, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/v3/%s/lookup?term=%s", c.resource, url.QueryEscape(query))
	var raw []lookupItem
	if err := c.DoJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	items := make([]types.MediaItem, 0, len(raw))
	for _, r := range raw {
		items = append(items, types.MediaItem{
			ID:    fmt.Sprintf("%d", r.ID),
			Title: r.Title,
			Year:  r.Year,
		})
	}
	return items, nil
}

// GetByID fetches one library item.
func (c *Connector) GetByID(ctx context.Context, id string) (*types.MediaItem, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var raw lookupItem
	if err := c.DoJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v3/%s/%s", c.resource, id), nil, &raw); err != nil {
		return nil, err
	}
	return &types.MediaItem{ID: fmt.Sprintf("%d", raw.ID), Title: raw.Title, Year: raw.Year}, nil
}

// Add submits a new item to the library.
func (c *Connector) Add(ctx context.Context, item *types.MediaItem) error {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	return c.DoJSON(ctx, http.MethodPost, "/api/v3/"+c.resource, item, nil)
}

// Update replaces an existing library item.
func (c *Connector) Update(ctx context.Context, item *types.MediaItem) error {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	return c.DoJSON(ctx, http.MethodPut, "/api/v3/"+c.resource, item, nil)
}

// Delete removes a library item.
func (c *Connector) Delete(ctx context.Context, id string) error {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	return c.DoJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/v3/%s/%s", c.resource, id), nil, nil)
}
