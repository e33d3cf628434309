package connector

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
)

// Constructor builds a connector for one service config. Construction is
// synchronous; it may fail for misconfigured services but must not touch the
// network (authentication is deferred until first need).
type Constructor func(cfg *config.ServiceConfig, logger *zap.Logger) (Connector, error)

// Factory maps service type tags to connector constructors. Populated at
// startup; unknown tags fail with ErrUnsupportedServiceType rather than any
// fallthrough behavior.
type Factory struct {
	mu           sync.RWMutex
	constructors map[config.ServiceType]Constructor
	logger       *zap.Logger
}

// NewFactory creates an empty factory.
func NewFactory(logger *zap.Logger) *Factory {
	return &Factory{
		constructors: make(map[config.ServiceType]Constructor),
		logger:       logger,
	}
}

// Register binds a constructor to a service type. Re-registering a type
// replaces the previous constructor.
func (f *Factory) Register(t config.ServiceType, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[t] = ctor
}

// SupportedTypes returns every registered service type.
func (f *Factory) SupportedTypes() []config.ServiceType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]config.ServiceType, 0, len(f.constructors))
	for t := range f.constructors {
		out = append(out, t)
	}
	return out
}

// Create constructs a connector for the given config. Errors propagate to the
// caller; the registry decides whether they are fatal (direct add) or
// isolated (bulk load).
func (f *Factory) Create(cfg *config.ServiceConfig) (Connector, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[cfg.Type]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedServiceType, cfg.Type)
	}

	c, err := ctor(cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s connector for %s: %w", cfg.Type, cfg.ID, err)
	}
	return c, nil
}
