// Package config provides configuration types and utilities for arrdeck.
// Centralized timeout and limit constants to eliminate magic numbers.
package config

import "time"

// HTTP client timeouts
const (
	// DefaultRequestTimeout applies to connector HTTP calls when the service
	// config does not carry its own timeout.
	DefaultRequestTimeout = 30 * time.Second

	// ReachabilityProbeTimeout bounds the lenient network pre-check in
	// TestConnection. Generous on purpose: VPN-routed clients are slow to
	// answer probes yet fine on the real API path.
	ReachabilityProbeTimeout = 15 * time.Second

	// HTTPIdleConnTimeout is the idle connection timeout for connector transports
	HTTPIdleConnTimeout = 90 * time.Second
)

// Health check & monitoring intervals
const (
	// HealthCheckInterval is how often the monitor polls connector health
	HealthCheckInterval = 60 * time.Second

	// TestAllTimeout bounds a full diagnostics fan-out across the registry
	TestAllTimeout = 45 * time.Second
)

// Notification pipeline limits
const (
	// MaxDeferredPerCategory bounds each category's deferred queue; the
	// oldest entry is evicted once the bound is hit.
	MaxDeferredPerCategory = 50

	// DigestMaxSummaries is the number of queued summaries shown in a flush
	// digest. The title still carries the total count.
	DigestMaxSummaries = 3

	// PushTimeout bounds one webhook push delivery
	PushTimeout = 10 * time.Second
)

// Event bus buffer sizes
const (
	EventChannelBufferSize    = 100
	EventChannelBufferSizeAll = 500
)
