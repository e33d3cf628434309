package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector"
	"arrdeck-go/internal/connector/types"
	"arrdeck-go/internal/events"
)

type stubConnector struct {
	cfg        *config.ServiceConfig
	health     types.SystemHealth
	version    string
	versionErr error
}

func (s *stubConnector) Config() *config.ServiceConfig    { return s.cfg }
func (s *stubConnector) Initialize(context.Context) error { return nil }
func (s *stubConnector) Dispose()                         {}
func (s *stubConnector) TestConnection(context.Context) types.ConnectionResult {
	return types.ConnectionResult{Success: true}
}
func (s *stubConnector) GetHealth(context.Context) types.SystemHealth { return s.health }
func (s *stubConnector) GetVersion(context.Context) (string, error) {
	return s.version, s.versionErr
}

type stubRegistry struct {
	connectors map[string]connector.Connector
}

func (r *stubRegistry) GetAllConnectors() map[string]connector.Connector {
	out := make(map[string]connector.Connector, len(r.connectors))
	for id, c := range r.connectors {
		out[id] = c
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyServiceStatusChange(_ context.Context, serviceID, _ string, status types.HealthStatus, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, serviceID+":"+string(status))
}

func (n *recordingNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.calls))
	copy(out, n.calls)
	return out
}

func stub(id string, t config.ServiceType, status types.HealthStatus, version string) *stubConnector {
	return &stubConnector{
		cfg:     &config.ServiceConfig{ID: id, Name: id, Type: t, URL: "http://localhost"},
		health:  types.SystemHealth{Status: status, LastChecked: time.Now()},
		version: version,
	}
}

func TestMonitor_CheckAllReportsEveryService(t *testing.T) {
	registry := &stubRegistry{connectors: map[string]connector.Connector{
		"a": stub("a", config.ServiceSonarr, types.HealthHealthy, "4.0.0"),
		"b": stub("b", config.ServiceRadarr, types.HealthOffline, ""),
	}}
	m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

	results := m.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, types.HealthHealthy, results["a"].Status)
	assert.Equal(t, types.HealthOffline, results["b"].Status)
}

func TestMonitor_VersionFloor(t *testing.T) {
	t.Run("below floor degrades", func(t *testing.T) {
		registry := &stubRegistry{connectors: map[string]connector.Connector{
			"old": stub("old", config.ServiceSonarr, types.HealthHealthy, "2.0.0"),
		}}
		m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

		results := m.CheckAll(context.Background())
		assert.Equal(t, types.HealthDegraded, results["old"].Status)
		assert.Contains(t, results["old"].Message, "below supported minimum")
		assert.Equal(t, "2.0.0", results["old"].Details["version"])
	})

	t.Run("at or above floor stays healthy", func(t *testing.T) {
		registry := &stubRegistry{connectors: map[string]connector.Connector{
			"new": stub("new", config.ServiceSonarr, types.HealthHealthy, "3.0.0"),
		}}
		m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

		results := m.CheckAll(context.Background())
		assert.Equal(t, types.HealthHealthy, results["new"].Status)
	})

	t.Run("leading v in version is accepted", func(t *testing.T) {
		registry := &stubRegistry{connectors: map[string]connector.Connector{
			"qbit": stub("qbit", config.ServiceQBittorrent, types.HealthHealthy, "v4.6.3"),
		}}
		m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

		results := m.CheckAll(context.Background())
		assert.Equal(t, types.HealthHealthy, results["qbit"].Status)
	})

	t.Run("version read failure does not downgrade", func(t *testing.T) {
		c := stub("flaky", config.ServiceSonarr, types.HealthHealthy, "")
		c.versionErr = errors.New("timeout")
		registry := &stubRegistry{connectors: map[string]connector.Connector{"flaky": c}}
		m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

		results := m.CheckAll(context.Background())
		assert.Equal(t, types.HealthHealthy, results["flaky"].Status)
	})

	t.Run("unlisted types skip the floor", func(t *testing.T) {
		registry := &stubRegistry{connectors: map[string]connector.Connector{
			"jelly": stub("jelly", config.ServiceJellyfin, types.HealthHealthy, "0.0.1"),
		}}
		m := NewMonitor(registry, nil, nil, time.Minute, zap.NewNop())

		results := m.CheckAll(context.Background())
		assert.Equal(t, types.HealthHealthy, results["jelly"].Status)
	})
}

func TestMonitor_TransitionsNotifyOnce(t *testing.T) {
	c := stub("a", config.ServiceSonarr, types.HealthOffline, "")
	registry := &stubRegistry{connectors: map[string]connector.Connector{"a": c}}
	notifier := &recordingNotifier{}
	m := NewMonitor(registry, notifier, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	// First sweep establishes and announces the offline state.
	m.CheckAll(ctx)
	assert.Equal(t, []string{"a:offline"}, notifier.recorded())

	// Unchanged status stays quiet.
	m.CheckAll(ctx)
	assert.Equal(t, []string{"a:offline"}, notifier.recorded())

	// Recovery announces again.
	c.health = types.SystemHealth{Status: types.HealthHealthy, LastChecked: time.Now()}
	c.version = "3.5.0"
	m.CheckAll(ctx)
	assert.Equal(t, []string{"a:offline", "a:healthy"}, notifier.recorded())
}

func TestMonitor_TransitionPublishesEvent(t *testing.T) {
	registry := &stubRegistry{connectors: map[string]connector.Connector{
		"a": stub("a", config.ServiceSonarr, types.HealthOffline, ""),
	}}
	bus := events.NewBus()
	defer bus.Close()
	ch := bus.Subscribe(events.ServiceHealthChanged)

	m := NewMonitor(registry, nil, bus, time.Minute, zap.NewNop())
	m.CheckAll(context.Background())

	select {
	case event := <-ch:
		assert.Equal(t, "a", event.ServiceID)
		data, ok := event.Data.(events.HealthChangeData)
		require.True(t, ok)
		assert.Equal(t, "offline", data.NewStatus)
	case <-time.After(time.Second):
		t.Fatal("expected health change event")
	}
}

func TestMonitor_ForgetResetsTransitionState(t *testing.T) {
	c := stub("a", config.ServiceSonarr, types.HealthOffline, "")
	registry := &stubRegistry{connectors: map[string]connector.Connector{"a": c}}
	notifier := &recordingNotifier{}
	m := NewMonitor(registry, notifier, nil, time.Minute, zap.NewNop())
	ctx := context.Background()

	m.CheckAll(ctx)
	m.Forget("a")
	m.CheckAll(ctx)

	// After Forget the same status is announced again, as for a fresh add.
	assert.Equal(t, []string{"a:offline", "a:offline"}, notifier.recorded())
}

func TestMonitor_StartAndStop(t *testing.T) {
	registry := &stubRegistry{connectors: map[string]connector.Connector{}}
	m := NewMonitor(registry, nil, nil, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	// Stop twice is harmless.
	m.Stop()
}
