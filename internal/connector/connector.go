// Package connector defines the uniform lifecycle and diagnostics contract
// every service adapter implements, the shared HTTP/auth building block, the
// type-to-constructor factory, and the registry that owns live adapters.
package connector

import (
	"context"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
)

// Connector is the lifecycle and diagnostics surface every service adapter
// provides. Live connectors are never persisted; only their ServiceConfig is.
type Connector interface {
	// Config returns the service configuration this connector is bound to.
	Config() *config.ServiceConfig

	// Initialize performs any setup the adapter needs before serving calls.
	// Idempotent by convention; adapters decide internal caching.
	Initialize(ctx context.Context) error

	// Dispose releases held resources. Synchronous, never fails, safe to
	// call multiple times.
	Dispose()

	// TestConnection runs the diagnostic sequence. Never returns an error;
	// every failure is captured in the result.
	TestConnection(ctx context.Context) types.ConnectionResult

	// GetHealth probes the service's health endpoint. Never returns an
	// error; failures are mapped to degraded or offline status.
	GetHealth(ctx context.Context) types.SystemHealth

	// GetVersion fetches the remote service's version string.
	GetVersion(ctx context.Context) (string, error)
}

// MediaConnector is the optional capability for services that manage a media
// library (the arr family).
type MediaConnector interface {
	Connector

	Search(ctx context.Context, query string) ([]types.MediaItem, error)
	GetByID(ctx context.Context, id string) (*types.MediaItem, error)
	Add(ctx context.Context, item *types.MediaItem) error
	Update(ctx context.Context, item *types.MediaItem) error
	Delete(ctx context.Context, id string) error
}

// DownloadConnector is the optional capability for download clients.
type DownloadConnector interface {
	Connector

	// SupportedContentTypes lists the content type tags this client accepts
	// (e.g. "series", "movie", "music").
	SupportedContentTypes() []string

	// SupportsContentType reports whether the client accepts one tag.
	SupportsContentType(contentType string) bool

	// GetQueue returns the client's current download queue.
	GetQueue(ctx context.Context) ([]types.DownloadItem, error)
}

// Capability tags recorded in the registry's capability table at registration
// time, replacing runtime shape-sniffing on every query.
type Capability string

const (
	CapabilityMedia    Capability = "media"
	CapabilityDownload Capability = "download"
)

// CapabilitiesOf inspects a connector once and returns its capability set.
// Called at registration; queries afterwards go through the table.
func CapabilitiesOf(c Connector) map[Capability]struct{} {
	caps := make(map[Capability]struct{}, 2)
	if _, ok := c.(MediaConnector); ok {
		caps[CapabilityMedia] = struct{}{}
	}
	if _, ok := c.(DownloadConnector); ok {
		caps[CapabilityDownload] = struct{}{}
	}
	return caps
}
