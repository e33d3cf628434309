// Package health polls every registered connector and turns status
// transitions into notifications and events.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/types"
	"arrdeck-go/internal/events"
)

// minSupportedVersions holds the oldest service version arrdeck is tested
// against. Healthy instances below the floor are reported as degraded.
var minSupportedVersions = map[config.ServiceType]string{
	config.ServiceSonarr:      "v3.0.0",
	config.ServiceRadarr:      "v3.0.0",
	config.ServiceLidarr:      "v1.0.0",
	config.ServiceQBittorrent: "v4.1.0",
}

// Registry is the slice of the connector manager the monitor reads.
type Registry interface {
	GetAllConnectors() map[string]connector.Connector
}

// Notifier receives health transitions.
type Notifier interface {
	NotifyServiceStatusChange(ctx context.Context, serviceID, serviceName string, status types.HealthStatus, detail string)
}

// Monitor runs the periodic health sweep. It keeps only the previous status
// per service id, enough to detect transitions; it is not a history.
type Monitor struct {
	registry Registry
	notifier Notifier
	eventBus *events.Bus
	logger   *zap.Logger
	interval time.Duration

	mu   sync.Mutex
	prev map[string]types.HealthStatus

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMonitor builds a monitor polling at interval. notifier and eventBus may
// be nil; transitions are then only logged.
func NewMonitor(registry Registry, notifier Notifier, eventBus *events.Bus, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = config.HealthCheckInterval
	}
	return &Monitor{
		registry: registry,
		notifier: notifier,
		eventBus: eventBus,
		logger:   logger,
		interval: interval,
		prev:     make(map[string]types.HealthStatus),
		stopChan: make(chan struct{}),
	}
}

// Start launches the poll loop. The first sweep runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.CheckAll(ctx)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the poll loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// CheckAll fans out a health check over every registered connector and
// processes transitions. Returns the sweep's results keyed by service id.
func (m *Monitor) CheckAll(ctx context.Context) map[string]types.SystemHealth {
	snapshot := m.registry.GetAllConnectors()

	results := make(map[string]types.SystemHealth, len(snapshot))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for id, c := range snapshot {
		wg.Add(1)
		go func(id string, c connector.Connector) {
			defer wg.Done()

			health := c.GetHealth(ctx)
			if health.Status == types.HealthHealthy {
				health = m.applyVersionFloor(ctx, c, health)
			}

			resultsMu.Lock()
			results[id] = health
			resultsMu.Unlock()

			m.handleTransition(ctx, c, health)
		}(id, c)
	}
	wg.Wait()

	return results
}

// applyVersionFloor downgrades a healthy result when the instance runs below
// the minimum supported version for its type.
func (m *Monitor) applyVersionFloor(ctx context.Context, c connector.Connector, health types.SystemHealth) types.SystemHealth {
	cfg := c.Config()
	floor, ok := minSupportedVersions[cfg.Type]
	if !ok {
		return health
	}

	version, err := c.GetVersion(ctx)
	if err != nil {
		// Health said healthy; a flaky version read is not worth a downgrade.
		m.logger.Debug("Version read failed during health sweep",
			zap.String("id", cfg.ID), zap.Error(err))
		return health
	}

	canonical := version
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if semver.Compare(canonical, floor) < 0 {
		health.Status = types.HealthDegraded
		health.Message = fmt.Sprintf("version %s is below supported minimum %s", version, floor)
	}
	if health.Details == nil {
		health.Details = make(map[string]string)
	}
	health.Details["version"] = version
	return health
}

func (m *Monitor) handleTransition(ctx context.Context, c connector.Connector, health types.SystemHealth) {
	cfg := c.Config()

	m.mu.Lock()
	previous, seen := m.prev[cfg.ID]
	m.prev[cfg.ID] = health.Status
	m.mu.Unlock()

	if seen && previous == health.Status {
		return
	}

	m.logger.Info("Service health transition",
		zap.String("id", cfg.ID),
		zap.String("name", cfg.Name),
		zap.String("old", string(previous)),
		zap.String("new", string(health.Status)))

	if m.eventBus != nil {
		m.eventBus.Publish(events.Event{
			Type:      events.ServiceHealthChanged,
			ServiceID: cfg.ID,
			Data: events.HealthChangeData{
				ServiceID: cfg.ID,
				OldStatus: string(previous),
				NewStatus: string(health.Status),
				Message:   health.Message,
			},
		})
	}

	if m.notifier != nil {
		m.notifier.NotifyServiceStatusChange(ctx, cfg.ID, cfg.Name, health.Status, health.Message)
	}
}

// Forget drops the remembered status for a removed service so a later
// re-add starts clean.
func (m *Monitor) Forget(serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prev, serviceID)
}
