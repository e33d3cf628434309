package storage

import (
	"encoding/json"
	"time"

	"arrdeck-go/internal/config"
)

// Bucket names for bbolt database
const (
	ServicesBucket    = "services"
	NotifyQueueBucket = "notify_queue"
	MetaBucket        = "meta"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
)

// Current schema version
const CurrentSchemaVersion = 1

// NotifyQueueKey is the single key under which the deferred notification
// queues are stored as one JSON blob.
const NotifyQueueKey = "deferred"

// ServiceRecord represents a configured service in storage
type ServiceRecord struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Type     config.ServiceType `json:"type"`
	URL      string             `json:"url"`
	APIKey   string             `json:"api_key,omitempty"`
	Username string             `json:"username,omitempty"`
	Password string             `json:"password,omitempty"`
	Enabled  bool               `json:"enabled"`
	ProxyURL string             `json:"proxy_url,omitempty"`
	Timeout  config.Duration    `json:"timeout,omitempty"`
	Created  time.Time          `json:"created"`
	Updated  time.Time          `json:"updated"`
}

// RecordFromConfig builds a storage record from a service config, stamping
// the Updated time.
func RecordFromConfig(cfg *config.ServiceConfig) *ServiceRecord {
	created := cfg.Created
	if created.IsZero() {
		created = time.Now()
	}
	return &ServiceRecord{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Type:     cfg.Type,
		URL:      cfg.URL,
		APIKey:   cfg.APIKey,
		Username: cfg.Username,
		Password: cfg.Password,
		Enabled:  cfg.Enabled,
		ProxyURL: cfg.ProxyURL,
		Timeout:  cfg.Timeout,
		Created:  created,
		Updated:  time.Now(),
	}
}

// ToConfig converts a storage record back into a service config.
func (r *ServiceRecord) ToConfig() *config.ServiceConfig {
	return &config.ServiceConfig{
		ID:       r.ID,
		Name:     r.Name,
		Type:     r.Type,
		URL:      r.URL,
		APIKey:   r.APIKey,
		Username: r.Username,
		Password: r.Password,
		Enabled:  r.Enabled,
		ProxyURL: r.ProxyURL,
		Timeout:  r.Timeout,
		Created:  r.Created,
		Updated:  r.Updated,
	}
}

// MarshalBinary implements encoding.BinaryMarshaler
func (r *ServiceRecord) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (r *ServiceRecord) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}
