package storage

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
)

// Manager provides a unified interface for storage operations. It is the
// durable side of the connector registry and the notification queue: the
// registry persists service configs through it, the notification service its
// deferred queue blob.
type Manager struct {
	db     *BoltDB
	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewManager creates a new storage manager
func NewManager(dataDir string, logger *zap.SugaredLogger) (*Manager, error) {
	db, err := NewBoltDB(dataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt database: %w", err)
	}

	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the storage manager
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// GetBoltDB returns the wrapped BoltDB instance for lower-level operations
func (m *Manager) GetBoltDB() *BoltDB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// SaveServiceConfig persists one service configuration, keyed by its id.
func (m *Manager) SaveServiceConfig(cfg *config.ServiceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.SaveService(RecordFromConfig(cfg))
}

// GetServiceConfig retrieves one service configuration by id.
func (m *Manager) GetServiceConfig(id string) (*config.ServiceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, err := m.db.GetService(id)
	if err != nil {
		return nil, err
	}
	return record.ToConfig(), nil
}

// GetServiceConfigs returns all persisted service configurations.
func (m *Manager) GetServiceConfigs() ([]*config.ServiceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, err := m.db.ListServices()
	if err != nil {
		return nil, err
	}

	configs := make([]*config.ServiceConfig, 0, len(records))
	for _, record := range records {
		configs = append(configs, record.ToConfig())
	}
	return configs, nil
}

// RemoveServiceConfig deletes a persisted service configuration.
func (m *Manager) RemoveServiceConfig(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.DeleteService(id)
}

// GetItem reads a raw blob by key. Missing keys return ("", false, nil) so
// callers can treat absence as empty state.
func (m *Manager) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := m.db.GetItem(key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// SetItem writes a raw blob under key.
func (m *Manager) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.SetItem(key, []byte(value))
}

// RemoveItem deletes a raw blob.
func (m *Manager) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.RemoveItem(key)
}
