// Package types provides type definitions shared by connector implementations
// and the registry.
package types

import (
	"time"
)

// HealthStatus classifies the reachability of a remote service.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// SystemHealth is the outcome of one health check. Produced per call; the
// monitor keeps only the previous status per service to detect transitions.
type SystemHealth struct {
	Status      HealthStatus      `json:"status"`
	Message     string            `json:"message,omitempty"`
	LastChecked time.Time         `json:"last_checked"`
	Details     map[string]string `json:"details,omitempty"`
}

// ConnectionResult is the outcome of a diagnostic probe. Ephemeral, never
// stored.
type ConnectionResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Version   string `json:"version,omitempty"`
}

// MediaItem is the minimal shape media-capable connectors exchange.
type MediaItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Year    int    `json:"year,omitempty"`
	Monitor bool   `json:"monitor,omitempty"`
}

// DownloadItem is one entry in a download client's queue.
type DownloadItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ContentType string  `json:"content_type,omitempty"`
	Progress    float64 `json:"progress"`
	State       string  `json:"state"`
}
