package connector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
)

// fakeConnector is a plain connector with no optional capabilities.
type fakeConnector struct {
	cfg         *config.ServiceConfig
	disposed    atomic.Int32
	testResult  types.ConnectionResult
	panicOnTest bool
}

func (f *fakeConnector) Config() *config.ServiceConfig    { return f.cfg }
func (f *fakeConnector) Initialize(context.Context) error { return nil }
func (f *fakeConnector) Dispose()                         { f.disposed.Add(1) }
func (f *fakeConnector) GetVersion(context.Context) (string, error) {
	return "1.0.0", nil
}
func (f *fakeConnector) GetHealth(context.Context) types.SystemHealth {
	return types.SystemHealth{Status: types.HealthHealthy}
}
func (f *fakeConnector) TestConnection(context.Context) types.ConnectionResult {
	if f.panicOnTest {
		panic("adapter bug")
	}
	return f.testResult
}

// fakeDownloadConnector adds the download capability.
type fakeDownloadConnector struct {
	fakeConnector
	contentTypes []string
}

func (f *fakeDownloadConnector) SupportedContentTypes() []string { return f.contentTypes }
func (f *fakeDownloadConnector) SupportsContentType(ct string) bool {
	for _, t := range f.contentTypes {
		if t == ct {
			return true
		}
	}
	return false
}
func (f *fakeDownloadConnector) GetQueue(context.Context) ([]types.DownloadItem, error) {
	return nil, nil
}

type fakeStore struct {
	mu      sync.Mutex
	saved   map[string]*config.ServiceConfig
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]*config.ServiceConfig{}}
}

func (s *fakeStore) GetServiceConfigs() ([]*config.ServiceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*config.ServiceConfig, 0, len(s.saved))
	for _, cfg := range s.saved {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *fakeStore) SaveServiceConfig(cfg *config.ServiceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[cfg.ID] = cfg
	return nil
}

func (s *fakeStore) RemoveServiceConfig(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func svcConfig(id string, t config.ServiceType) *config.ServiceConfig {
	return &config.ServiceConfig{
		ID:      id,
		Name:    id,
		Type:    t,
		URL:     "http://localhost:8989",
		Enabled: true,
	}
}

// testFactory registers fakes for sonarr (plain) and qbittorrent (download).
func testFactory(t *testing.T, made map[string]*fakeConnector) *Factory {
	t.Helper()
	f := NewFactory(zap.NewNop())
	f.Register(config.ServiceSonarr, func(cfg *config.ServiceConfig, _ *zap.Logger) (Connector, error) {
		fc := &fakeConnector{cfg: cfg}
		if made != nil {
			made[cfg.ID] = fc
		}
		return fc, nil
	})
	f.Register(config.ServiceQBittorrent, func(cfg *config.ServiceConfig, _ *zap.Logger) (Connector, error) {
		fc := &fakeDownloadConnector{
			fakeConnector: fakeConnector{cfg: cfg},
			contentTypes:  []string{"series", "movie"},
		}
		if made != nil {
			made[cfg.ID] = &fc.fakeConnector
		}
		return fc, nil
	})
	return f
}

func TestFactory_UnknownTypeFails(t *testing.T) {
	f := testFactory(t, nil)

	_, err := f.Create(svcConfig("x", config.ServiceJellyfin))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedServiceType)
}

func TestManager_AddGetRemove(t *testing.T) {
	store := newFakeStore()
	m := NewManager(testFactory(t, nil), store, zap.NewNop())
	defer m.Dispose()
	ctx := context.Background()

	c, err := m.AddConnector(ctx, svcConfig("sonarr-1", config.ServiceSonarr))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, m.Count())

	got, ok := m.GetConnector("sonarr-1")
	require.True(t, ok)
	assert.Same(t, c, got)

	// Persisted on add.
	assert.Contains(t, store.saved, "sonarr-1")

	m.RemoveConnector("sonarr-1")
	assert.Equal(t, 0, m.Count())
	_, ok = m.GetConnector("sonarr-1")
	assert.False(t, ok)
	assert.NotContains(t, store.saved, "sonarr-1")
}

func TestManager_UpsertDisposesPrevious(t *testing.T) {
	made := map[string]*fakeConnector{}
	m := NewManager(testFactory(t, made), newFakeStore(), zap.NewNop())
	defer m.Dispose()
	ctx := context.Background()

	first, err := m.AddConnector(ctx, svcConfig("sonarr-1", config.ServiceSonarr))
	require.NoError(t, err)
	prev := made["sonarr-1"]

	second, err := m.AddConnector(ctx, svcConfig("sonarr-1", config.ServiceSonarr))
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, int32(1), prev.disposed.Load(), "replaced connector must be disposed")

	got, ok := m.GetConnector("sonarr-1")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestManager_AddUnknownTypeDoesNotRegister(t *testing.T) {
	m := NewManager(testFactory(t, nil), newFakeStore(), zap.NewNop())
	defer m.Dispose()

	_, err := m.AddConnector(context.Background(), svcConfig("j-1", config.ServiceJellyfin))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedServiceType)
	assert.Equal(t, 0, m.Count())
}

func TestManager_RemoveAbsentIsNoop(t *testing.T) {
	m := NewManager(testFactory(t, nil), newFakeStore(), zap.NewNop())
	defer m.Dispose()

	m.RemoveConnector("no-such-id")
	assert.Equal(t, 0, m.Count())
}

func TestManager_PersistFailureKeepsLiveConnector(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("disk full")
	m := NewManager(testFactory(t, nil), store, zap.NewNop())
	defer m.Dispose()

	c, err := m.AddConnector(context.Background(), svcConfig("sonarr-1", config.ServiceSonarr))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, m.Count())
}

func TestManager_LoadSavedServicesSkipsDisabled(t *testing.T) {
	store := newFakeStore()
	store.saved["a"] = svcConfig("a", config.ServiceSonarr)
	disabled := svcConfig("b", config.ServiceSonarr)
	disabled.Enabled = false
	store.saved["b"] = disabled
	store.saved["c"] = svcConfig("c", config.ServiceJellyfin) // unsupported, isolated

	m := NewManager(testFactory(t, nil), store, zap.NewNop())
	defer m.Dispose()

	require.NoError(t, m.LoadSavedServices(context.Background()))
	assert.Equal(t, 1, m.Count())
	_, ok := m.GetConnector("a")
	assert.True(t, ok)
}

func TestManager_TestAllConnections(t *testing.T) {
	made := map[string]*fakeConnector{}
	m := NewManager(testFactory(t, made), newFakeStore(), zap.NewNop())
	defer m.Dispose()
	ctx := context.Background()

	_, err := m.AddConnector(ctx, svcConfig("ok", config.ServiceSonarr))
	require.NoError(t, err)
	made["ok"].testResult = types.ConnectionResult{Success: true, Message: "Connection successful", LatencyMS: 12}

	_, err = m.AddConnector(ctx, svcConfig("bad", config.ServiceSonarr))
	require.NoError(t, err)
	made["bad"].testResult = types.ConnectionResult{Success: false, Message: "auth failed"}

	_, err = m.AddConnector(ctx, svcConfig("boom", config.ServiceSonarr))
	require.NoError(t, err)
	made["boom"].panicOnTest = true

	results := m.TestAllConnections(ctx)
	require.Len(t, results, 3)
	assert.True(t, results["ok"].Success)
	assert.False(t, results["bad"].Success)
	assert.False(t, results["boom"].Success, "a panicking adapter becomes a failure result")
	assert.Contains(t, results["boom"].Message, "internal connector failure")
}

func TestManager_DownloadCapabilityQueries(t *testing.T) {
	m := NewManager(testFactory(t, nil), newFakeStore(), zap.NewNop())
	defer m.Dispose()
	ctx := context.Background()

	_, err := m.AddConnector(ctx, svcConfig("sonarr-1", config.ServiceSonarr))
	require.NoError(t, err)

	assert.False(t, m.HasDownloadConnectors())
	assert.Empty(t, m.GetDownloadConnectors())
	_, ok := m.GetDownloadConnector("sonarr-1")
	assert.False(t, ok, "media connector must not satisfy download queries")

	_, err = m.AddConnector(ctx, svcConfig("qbit-1", config.ServiceQBittorrent))
	require.NoError(t, err)

	assert.True(t, m.HasDownloadConnectors())
	assert.Len(t, m.GetDownloadConnectors(), 1)
	assert.True(t, m.SupportsDownloadType(config.ServiceQBittorrent))
	assert.False(t, m.SupportsDownloadType(config.ServiceSonarr))
	assert.Equal(t, []config.ServiceType{config.ServiceQBittorrent}, m.GetDownloadSupportedServiceTypes())

	dc, ok := m.GetDownloadConnector("qbit-1")
	require.True(t, ok)
	assert.True(t, dc.SupportsContentType("series"))

	byContent, ok := m.GetDownloadConnectorForContent("movie", "")
	require.True(t, ok)
	assert.Equal(t, "qbit-1", byContent.Config().ID)
	_, ok = m.GetDownloadConnectorForContent("music", "")
	assert.False(t, ok)

	stats := m.GetDownloadConnectorStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByType[config.ServiceQBittorrent])
}

func TestManager_DisposeClearsEverything(t *testing.T) {
	made := map[string]*fakeConnector{}
	m := NewManager(testFactory(t, made), newFakeStore(), zap.NewNop())
	ctx := context.Background()

	_, err := m.AddConnector(ctx, svcConfig("a", config.ServiceSonarr))
	require.NoError(t, err)
	_, err = m.AddConnector(ctx, svcConfig("b", config.ServiceQBittorrent))
	require.NoError(t, err)

	m.Dispose()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, int32(1), made["a"].disposed.Load())
	assert.Equal(t, int32(1), made["b"].disposed.Load())
}

func TestCapabilitiesOf(t *testing.T) {
	plain := CapabilitiesOf(&fakeConnector{})
	assert.Empty(t, plain)

	download := CapabilitiesOf(&fakeDownloadConnector{})
	_, ok := download[CapabilityDownload]
	assert.True(t, ok)
	_, ok = download[CapabilityMedia]
	assert.False(t, ok)
}
