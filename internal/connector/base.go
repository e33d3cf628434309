package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
)

// AuthFunc performs service-specific authentication (e.g. a session login).
// Services whose credentials ride on every request (API key header, basic
// auth) use a no-op.
type AuthFunc func(ctx context.Context) error

// Base supplies the shared infrastructure concrete adapters build on: the
// HTTP client with logging and auth header injection, the authentication
// gate, error normalization, and the diagnostic sequence.
type Base struct {
	cfg      *config.ServiceConfig
	logger   *zap.Logger
	client   *http.Client
	gate     *types.AuthGate
	authFn   AuthFunc
	disposed atomic.Bool
}

// NewBase builds the shared connector core for one service config.
// authenticate may be nil for services without a session handshake.
func NewBase(cfg *config.ServiceConfig, logger *zap.Logger, authenticate AuthFunc) (*Base, error) {
	client, err := newHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	if authenticate == nil {
		authenticate = func(context.Context) error { return nil }
	}

	return &Base{
		cfg:    cfg,
		logger: logger.With(zap.String("service_id", cfg.ID), zap.String("service_type", string(cfg.Type))),
		client: client,
		gate:   types.NewAuthGate(),
		authFn: authenticate,
	}, nil
}

func newHTTPClient(cfg *config.ServiceConfig, logger *zap.Logger) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.IdleConnTimeout = config.HTTPIdleConnTimeout

	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url for service %s: %w", cfg.ID, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	// Session-authenticated services need the jar; the rest are unaffected.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &http.Client{
		Timeout: cfg.RequestTimeout(),
		Jar:     jar,
		Transport: &loggingTransport{
			inner:  transport,
			cfg:    cfg,
			logger: logger,
		},
	}, nil
}

// loggingTransport logs every outbound request and inbound response with
// service context, and injects the per-type auth headers.
type loggingTransport struct {
	inner  http.RoundTripper
	cfg    *config.ServiceConfig
	logger *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuthHeaders(req, t.cfg)

	start := time.Now()
	resp, err := t.inner.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Warn("HTTP request failed",
			zap.String("service_id", t.cfg.ID),
			zap.String("service_type", string(t.cfg.Type)),
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}

	t.logger.Debug("HTTP request",
		zap.String("service_id", t.cfg.ID),
		zap.String("service_type", string(t.cfg.Type)),
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed))

	return resp, nil
}

// applyAuthHeaders injects the credentials appropriate to the service type.
// Session-based clients (qbittorrent) authenticate through their AuthFunc and
// the cookie jar instead, so they get no header here.
func applyAuthHeaders(req *http.Request, cfg *config.ServiceConfig) {
	switch cfg.Type {
	case config.ServiceSonarr, config.ServiceRadarr, config.ServiceLidarr:
		if cfg.APIKey != "" {
			req.Header.Set("X-Api-Key", cfg.APIKey)
		}
	case config.ServiceJellyfin:
		if cfg.APIKey != "" {
			req.Header.Set("X-Emby-Token", cfg.APIKey)
		}
	case config.ServiceSABnzbd:
		if cfg.APIKey != "" {
			q := req.URL.Query()
			q.Set("apikey", cfg.APIKey)
			req.URL.RawQuery = q.Encode()
		}
	case config.ServiceQBittorrent:
		// Session cookie from the login handshake carries the credentials.
	default:
		if cfg.Username != "" {
			req.SetBasicAuth(cfg.Username, cfg.Password)
		}
	}
}

// Config returns the bound service configuration.
func (b *Base) Config() *config.ServiceConfig {
	return b.cfg
}

// Logger returns the service-scoped logger.
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

// HTTPClient exposes the shared client for adapter-specific calls.
func (b *Base) HTTPClient() *http.Client {
	return b.client
}

// AuthState returns the current authentication state.
func (b *Base) AuthState() types.AuthState {
	return b.gate.State()
}

// EnsureAuthenticated runs the auth gate: a no-op when a session is held,
// otherwise the service's authenticate function. Failure leaves the gate
// Unauthenticated so the next call retries.
func (b *Base) EnsureAuthenticated(ctx context.Context) error {
	err := b.gate.Ensure(ctx, b.authFn)
	if err != nil {
		b.logger.Warn("Authentication failed", zap.Error(err))
		return fmt.Errorf("%w: %s", ErrAuthenticationFailed, err)
	}
	return nil
}

// ClearSession drops the held auth session.
func (b *Base) ClearSession() {
	b.gate.Clear()
}

// Dispose drops the auth session and idle connections. Safe to call multiple
// times.
func (b *Base) Dispose() {
	if b.disposed.Swap(true) {
		return
	}
	b.gate.Clear()
	b.client.CloseIdleConnections()
	b.logger.Info("Connector disposed")
}

// JoinURL appends path to the service base URL. The base URL's own path is
// kept, so services hosted under a prefix (reverse-proxied arr instances)
// resolve correctly.
func (b *Base) JoinURL(path string) string {
	base, err := url.Parse(b.cfg.URL)
	if err != nil {
		return b.cfg.URL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return b.cfg.URL + path
	}
	joined := base.JoinPath(ref.Path)
	joined.RawQuery = ref.RawQuery
	return joined.String()
}

// DoJSON issues a request against the service and decodes the JSON response
// into out (when non-nil). Failures are normalized to APIError.
func (b *Base) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return normalizeError(fmt.Errorf("failed to encode request body: %w", err), 0, b.cfg, b.logger)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.JoinURL(path), reader)
	if err != nil {
		return normalizeError(err, 0, b.cfg, b.logger)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return normalizeError(err, 0, b.cfg, b.logger)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return normalizeError(
			fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(payload)),
			resp.StatusCode, b.cfg, b.logger)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return normalizeError(fmt.Errorf("failed to decode response: %w", err), resp.StatusCode, b.cfg, b.logger)
	}
	return nil
}

// probeReachability attempts a TCP dial to the service endpoint. Failures are
// tolerated by Diagnose: VPN- or tunnel-routed clients regularly fail generic
// probes yet succeed on the actual API call.
func (b *Base) probeReachability(ctx context.Context) error {
	u, err := url.Parse(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid service url: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = net.JoinHostPort(u.Hostname(), "443")
		default:
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	dialer := &net.Dialer{Timeout: config.ReachabilityProbeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	_ = conn.Close()
	return nil
}

// Diagnose runs the diagnostic sequence on behalf of self: lenient
// reachability probe, strict auth gate, Initialize + GetVersion. It never
// returns an error; latency covers the whole sequence in every branch.
func (b *Base) Diagnose(ctx context.Context, self Connector) types.ConnectionResult {
	start := time.Now()

	if err := b.probeReachability(ctx); err != nil {
		// Not fatal: restrictive networks fail probes while the API works.
		b.logger.Warn("Reachability probe failed, continuing diagnostics", zap.Error(err))
	}

	if err := b.EnsureAuthenticated(ctx); err != nil {
		return types.ConnectionResult{
			Success:   false,
			Message:   fmt.Sprintf("authentication failed: %v", err),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	if err := self.Initialize(ctx); err != nil {
		return types.ConnectionResult{
			Success:   false,
			Message:   fmt.Sprintf("initialization failed: %v", err),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	version, err := self.GetVersion(ctx)
	if err != nil {
		return types.ConnectionResult{
			Success:   false,
			Message:   fmt.Sprintf("version check failed: %v", err),
			LatencyMS: time.Since(start).Milliseconds(),
		}
	}

	return types.ConnectionResult{
		Success:   true,
		Message:   "connection ok",
		LatencyMS: time.Since(start).Milliseconds(),
		Version:   version,
	}
}

// DefaultHealth implements the generic health check against healthPath.
// Network-class failures map to offline, everything else to degraded; it
// never returns an error.
func (b *Base) DefaultHealth(ctx context.Context, healthPath string) types.SystemHealth {
	now := time.Now()

	if err := b.DoJSON(ctx, http.MethodGet, healthPath, nil, nil); err != nil {
		status := types.HealthDegraded
		if isNetworkError(err) || isTimeoutError(err) {
			status = types.HealthOffline
		}
		return types.SystemHealth{
			Status:      status,
			Message:     err.Error(),
			LastChecked: now,
		}
	}

	return types.SystemHealth{
		Status:      types.HealthHealthy,
		LastChecked: now,
	}
}
