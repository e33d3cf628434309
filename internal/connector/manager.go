package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
	"arrdeck-go/internal/events"
)

// ServiceStore is the persistence seam the registry writes through.
type ServiceStore interface {
	GetServiceConfigs() ([]*config.ServiceConfig, error)
	SaveServiceConfig(cfg *config.ServiceConfig) error
	RemoveServiceConfig(id string) error
}

// entry pairs a live connector with its capability set, recorded once at
// registration so queries never shape-sniff.
type entry struct {
	connector Connector
	caps      map[Capability]struct{}
}

// Manager is the single process-wide authority over which connectors exist.
// It owns every live connector reference exclusively; all access goes through
// its methods. Construct one per process in the composition root (it is not a
// hidden singleton, so tests build their own).
//
// Registry mutations for the same id are last-write-wins: the map itself is
// lock-guarded for memory safety, but two concurrent AddConnector calls for
// one id are not serialized against each other. Config mutation is
// user-initiated and effectively serialized upstream, so this is documented
// rather than fixed.
type Manager struct {
	mu         sync.RWMutex
	connectors map[string]*entry
	factory    *Factory
	store      ServiceStore
	eventBus   *events.Bus
	logger     *zap.Logger
	onUpdate   func()
}

// NewManager creates a registry backed by the given factory and store.
// store may be nil in tests that never persist.
func NewManager(factory *Factory, store ServiceStore, logger *zap.Logger) *Manager {
	return &Manager{
		connectors: make(map[string]*entry),
		factory:    factory,
		store:      store,
		logger:     logger,
	}
}

// SetEventBus sets the event bus for publishing registry changes.
func (m *Manager) SetEventBus(bus *events.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventBus = bus
}

// SetUpdateCallback registers a subscriber invoked after every registry
// mutation, so callers can mirror the registry without polling.
func (m *Manager) SetUpdateCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

func (m *Manager) notifySubscriber() {
	m.mu.RLock()
	fn := m.onUpdate
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (m *Manager) publish(eventType events.EventType, serviceID string) {
	m.mu.RLock()
	bus := m.eventBus
	m.mu.RUnlock()
	if bus != nil {
		bus.Publish(events.Event{Type: eventType, ServiceID: serviceID})
	}
}

// LoadSavedServices reads all persisted configs, filters to enabled ones, and
// registers a connector for each concurrently. Per-config failures are logged
// and isolated; one bad config never prevents the rest from loading.
func (m *Manager) LoadSavedServices(ctx context.Context) error {
	if m.store == nil {
		return fmt.Errorf("no service store configured")
	}

	configs, err := m.store.GetServiceConfigs()
	if err != nil {
		return fmt.Errorf("failed to read saved services: %w", err)
	}

	var wg sync.WaitGroup
	for _, cfg := range configs {
		if !cfg.Enabled {
			m.logger.Debug("Skipping disabled service", zap.String("id", cfg.ID))
			continue
		}

		wg.Add(1)
		go func(cfg *config.ServiceConfig) {
			defer wg.Done()
			if _, err := m.addConnector(ctx, cfg, false); err != nil {
				m.logger.Error("Failed to load saved service",
					zap.String("id", cfg.ID),
					zap.String("type", string(cfg.Type)),
					zap.Error(err))
			}
		}(cfg)
	}
	wg.Wait()

	m.logger.Info("Loaded saved services", zap.Int("registered", m.Count()))
	return nil
}

// AddConnector constructs, registers, and persists a connector for cfg.
// Upsert semantics: an existing connector under the same id is disposed and
// its auth session cleared before the replacement takes its slot.
// Construction failures propagate to the caller.
func (m *Manager) AddConnector(ctx context.Context, cfg *config.ServiceConfig) (Connector, error) {
	return m.addConnector(ctx, cfg, true)
}

func (m *Manager) addConnector(_ context.Context, cfg *config.ServiceConfig, persist bool) (Connector, error) {
	c, err := m.factory.Create(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.connectors[cfg.ID]; ok {
		m.logger.Info("Replacing existing connector",
			zap.String("id", cfg.ID),
			zap.String("type", string(cfg.Type)))
		existing.connector.Dispose()
	}
	m.connectors[cfg.ID] = &entry{connector: c, caps: CapabilitiesOf(c)}
	m.mu.Unlock()

	m.logger.Info("Registered connector",
		zap.String("id", cfg.ID),
		zap.String("name", cfg.Name),
		zap.String("type", string(cfg.Type)))

	if persist && m.store != nil {
		if err := m.store.SaveServiceConfig(cfg); err != nil {
			// The live connector is already registered; surface the
			// persistence failure without unwinding it.
			m.logger.Error("Failed to persist service config",
				zap.String("id", cfg.ID), zap.Error(err))
		}
	}

	m.notifySubscriber()
	m.publish(events.ServiceAdded, cfg.ID)
	return c, nil
}

// RemoveConnector disposes and deregisters the connector for id, deleting the
// persisted config. Removing an absent id is a no-op.
func (m *Manager) RemoveConnector(id string) {
	m.removeConnector(id, true)
}

func (m *Manager) removeConnector(id string, persist bool) {
	m.mu.Lock()
	e, ok := m.connectors[id]
	if ok {
		delete(m.connectors, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	e.connector.Dispose()
	m.logger.Info("Removed connector", zap.String("id", id))

	if persist && m.store != nil {
		if err := m.store.RemoveServiceConfig(id); err != nil {
			m.logger.Error("Failed to delete persisted service config",
				zap.String("id", id), zap.Error(err))
		}
	}

	m.notifySubscriber()
	m.publish(events.ServiceRemoved, id)
}

// GetConnector returns the connector for id.
func (m *Manager) GetConnector(id string) (Connector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.connectors[id]
	if !ok {
		return nil, false
	}
	return e.connector, true
}

// GetConnectorsByType returns all connectors bound to configs of type t.
func (m *Manager) GetConnectorsByType(t config.ServiceType) []Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Connector
	for _, e := range m.connectors {
		if e.connector.Config().Type == t {
			out = append(out, e.connector)
		}
	}
	return out
}

// GetAllConnectors returns a snapshot of every registered connector keyed by
// service id.
func (m *Manager) GetAllConnectors() map[string]Connector {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Connector, len(m.connectors))
	for id, e := range m.connectors {
		out[id] = e.connector
	}
	return out
}

// Count returns the number of registered connectors.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connectors)
}

// TestAllConnections fans out TestConnection over every registered connector
// in parallel. Panics or stray errors from a misbehaving adapter are captured
// as failure results, so the batch always resolves with one entry per id.
func (m *Manager) TestAllConnections(ctx context.Context) map[string]types.ConnectionResult {
	snapshot := m.GetAllConnectors()

	results := make(map[string]types.ConnectionResult, len(snapshot))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for id, c := range snapshot {
		wg.Add(1)
		go func(id string, c Connector) {
			defer wg.Done()

			result := func() (r types.ConnectionResult) {
				defer func() {
					if rec := recover(); rec != nil {
						m.logger.Error("Connector panicked during diagnostics",
							zap.String("id", id),
							zap.Any("panic", rec))
						r = types.ConnectionResult{
							Success: false,
							Message: fmt.Sprintf("internal connector failure: %v", rec),
						}
					}
				}()
				return c.TestConnection(ctx)
			}()

			resultsMu.Lock()
			results[id] = result
			resultsMu.Unlock()
		}(id, c)
	}
	wg.Wait()

	return results
}

// Dispose tears down every connector and empties the registry. Used at
// process shutdown.
func (m *Manager) Dispose() {
	m.mu.Lock()
	entries := m.connectors
	m.connectors = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range entries {
		e.connector.Dispose()
		m.logger.Debug("Disposed connector", zap.String("id", id))
	}

	m.notifySubscriber()
}

// Download-capability queries. These go through the capability table recorded
// at registration, not runtime type sniffing.

func (m *Manager) downloadEntries() []*entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*entry
	for _, e := range m.connectors {
		if _, ok := e.caps[CapabilityDownload]; ok {
			out = append(out, e)
		}
	}
	return out
}

// GetDownloadConnectors returns every download-capable connector.
func (m *Manager) GetDownloadConnectors() []DownloadConnector {
	entries := m.downloadEntries()
	out := make([]DownloadConnector, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.connector.(DownloadConnector))
	}
	return out
}

// GetDownloadConnectorsByType returns download-capable connectors of type t.
func (m *Manager) GetDownloadConnectorsByType(t config.ServiceType) []DownloadConnector {
	var out []DownloadConnector
	for _, e := range m.downloadEntries() {
		if e.connector.Config().Type == t {
			out = append(out, e.connector.(DownloadConnector))
		}
	}
	return out
}

// GetDownloadConnector returns the download-capable connector for id, if the
// id exists and carries the capability.
func (m *Manager) GetDownloadConnector(id string) (DownloadConnector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.connectors[id]
	if !ok {
		return nil, false
	}
	if _, capable := e.caps[CapabilityDownload]; !capable {
		return nil, false
	}
	return e.connector.(DownloadConnector), true
}

// SupportsDownloadType reports whether any registered download connector is
// of service type t.
func (m *Manager) SupportsDownloadType(t config.ServiceType) bool {
	for _, e := range m.downloadEntries() {
		if e.connector.Config().Type == t {
			return true
		}
	}
	return false
}

// GetDownloadSupportedServiceTypes returns the distinct service types of all
// download-capable connectors, sorted.
func (m *Manager) GetDownloadSupportedServiceTypes() []config.ServiceType {
	seen := make(map[config.ServiceType]struct{})
	for _, e := range m.downloadEntries() {
		seen[e.connector.Config().Type] = struct{}{}
	}

	out := make([]config.ServiceType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasDownloadConnectors reports whether any download-capable connector is
// registered.
func (m *Manager) HasDownloadConnectors() bool {
	return len(m.downloadEntries()) > 0
}

// GetDownloadConnectorForContent returns the first registered download
// connector that accepts contentType. No load balancing or preference logic;
// first match wins.
func (m *Manager) GetDownloadConnectorForContent(contentType, _ string) (DownloadConnector, bool) {
	for _, e := range m.downloadEntries() {
		dc := e.connector.(DownloadConnector)
		if dc.SupportsContentType(contentType) {
			return dc, true
		}
	}
	return nil, false
}

// DownloadStats aggregates counts of download-capable connectors.
type DownloadStats struct {
	Total  int                        `json:"total"`
	ByType map[config.ServiceType]int `json:"by_type"`
}

// GetDownloadConnectorStats returns aggregate counts by service type.
func (m *Manager) GetDownloadConnectorStats() DownloadStats {
	stats := DownloadStats{ByType: make(map[config.ServiceType]int)}
	for _, e := range m.downloadEntries() {
		stats.Total++
		stats.ByType[e.connector.Config().Type]++
	}
	return stats
}
