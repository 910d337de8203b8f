package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/channelsync/orders-backend/pkg/db/models"
	"github.com/channelsync/orders-backend/pkg/types"
)

// RawOrder is the unparsed payload for a single marketplace order.
type RawOrder map[string]any

// Mapper normalizes one marketplace's raw payloads into canonical orders.
type Mapper interface {
	Map(ctx context.Context, raw RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(ctx context.Context, raw RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error)

func (f MapperFunc) Map(ctx context.Context, raw RawOrder, tenant types.TenantKey) (*models.CanonicalOrder, error) {
	return f(ctx, raw, tenant)
}

// Registry holds the mapper for each marketplace. Lookups are keyed on the
// lowercased marketplace name.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]Mapper
}

func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register binds a mapper to a marketplace name. Registering the same
// marketplace twice is a wiring bug and returns an error.
func (r *Registry) Register(marketplaceName string, mapper Mapper) error {
	key := normalizeMarketplace(marketplaceName)
	if key == "" {
		return fmt.Errorf("marketplace name is required")
	}
	if mapper == nil {
		return fmt.Errorf("mapper is required for marketplace %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappers[key]; exists {
		return fmt.Errorf("mapper already registered for marketplace %q", key)
	}
	r.mappers[key] = mapper
	return nil
}

// Lookup returns the mapper for a marketplace, if one is registered.
func (r *Registry) Lookup(marketplaceName string) (Mapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mapper, ok := r.mappers[normalizeMarketplace(marketplaceName)]
	return mapper, ok
}

// Marketplaces lists the registered marketplace names.
func (r *Registry) Marketplaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.mappers))
	for name := range r.mappers {
		names = append(names, name)
	}
	return names
}

func normalizeMarketplace(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
