// Package download implements connectors for download clients. The
// qBittorrent adapter exercises session-cookie authentication: credentials
// are exchanged once through the auth gate and the session rides in the
// shared client's cookie jar afterwards.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/types"
)

// qbittorrent accepts any of the media content tags; torrents are not
// type-specific.
var qbitContentTypes = []string{"series", "movie", "music"}

// QBittorrent adapts a qBittorrent WebUI instance.
type QBittorrent struct {
	*connector.Base
}

// NewQBittorrent constructs the connector. Registered with the factory for
// the qbittorrent type tag.
func NewQBittorrent(cfg *config.ServiceConfig, logger *zap.Logger) (connector.Connector, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("service %s: qbittorrent requires a username", cfg.ID)
	}

	q := &QBittorrent{}
	base, err := connector.NewBase(cfg, logger, q.login)
	if err != nil {
		return nil, err
	}
	q.Base = base
	return q, nil
}

// login performs the WebUI session handshake. The session cookie lands in the
// shared client's jar; a "Fails." body means rejected credentials.
func (q *QBittorrent) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", q.Config().Username)
	form.Set("password", q.Config().Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.JoinURL("/api/v2/auth/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.HTTPClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode != http.StatusOK || strings.HasPrefix(string(body), "Fails") {
		return fmt.Errorf("login rejected (status %d)", resp.StatusCode)
	}
	return nil
}

// Initialize authenticates the session.
func (q *QBittorrent) Initialize(ctx context.Context) error {
	return q.EnsureAuthenticated(ctx)
}

// GetVersion fetches the application version. The endpoint answers with a
// bare string, not JSON.
func (q *QBittorrent) GetVersion(ctx context.Context) (string, error) {
	if err := q.EnsureAuthenticated(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.JoinURL("/api/v2/app/version"), nil)
	if err != nil {
		return "", err
	}

	resp, err := q.HTTPClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 128))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// TestConnection runs the shared diagnostic sequence.
func (q *QBittorrent) TestConnection(ctx context.Context) types.ConnectionResult {
	return q.Diagnose(ctx, q)
}

// GetHealth pings the version endpoint as a liveness check.
func (q *QBittorrent) GetHealth(ctx context.Context) types.SystemHealth {
	now := time.Now()

	version, err := q.GetVersion(ctx)
	if err != nil {
		return types.SystemHealth{
			Status:      connector.HealthStatusFor(err),
			Message:     err.Error(),
			LastChecked: now,
		}
	}

	return types.SystemHealth{
		Status:      types.HealthHealthy,
		LastChecked: now,
		Details:     map[string]string{"version": version},
	}
}

// SupportedContentTypes lists the content tags this client accepts.
func (q *QBittorrent) SupportedContentTypes() []string {
	out := make([]string, len(qbitContentTypes))
	copy(out, qbitContentTypes)
	return out
}

// SupportsContentType reports whether the client accepts contentType.
func (q *QBittorrent) SupportsContentType(contentType string) bool {
	for _, t := range qbitContentTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

type torrentInfo struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
	Category string  `json:"category"`
}

// GetQueue returns the client's torrent list mapped to download items.
func (q *QBittorrent) GetQueue(ctx context.Context) ([]types.DownloadItem, error) {
	if err := q.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var raw []torrentInfo
	if err := q.DoJSON(ctx, http.MethodGet, "/api/v2/torrents/info", nil, &raw); err != nil {
		return nil, err
	}

	items := make([]types.DownloadItem, 0, len(raw))
	for _, t := range raw {
		items = append(items, types.DownloadItem{
			ID:          t.Hash,
			Name:        t.Name,
			ContentType: t.Category,
			Progress:    t.Progress,
			State:       t.State,
		})
	}
	return items, nil
}
