package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DatasourceAdapterInfo describes a registered adapter.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "mysql"
	DisplayName string `json:"display_name"` // "MySQL"
	Description string `json:"description"`  // "Connect to MySQL 5.7+"
}

// SessionFactory opens a read-only session from a generic config map.
type SessionFactory func(ctx context.Context, config map[string]any, opts SessionOptions, logger *zap.Logger) (Session, error)

// DatasourceAdapterRegistration contains info + the session factory for an adapter.
type DatasourceAdapterRegistration struct {
	Info           DatasourceAdapterInfo
	SessionFactory SessionFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetSessionFactory returns the session factory for a datasource type.
// Returns nil if type is not registered.
func GetSessionFactory(dsType string) SessionFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.SessionFactory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
