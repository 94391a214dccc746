package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"

	storageconfig "github.com/tigerroll/waves/pkg/waves/adapter/storage/config"
	config "github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// OpenFunc opens a connection of one backend type.
type OpenFunc func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

// DecodeStorageConfig reads the entry called name from the storage section.
func DecodeStorageConfig(cfg *config.Config, name string) (storageconfig.StorageConfig, error) {
	var storageCfg storageconfig.StorageConfig
	raw, ok := cfg.Waves.Storage[name]
	if !ok {
		return storageCfg, fmt.Errorf("storage configuration '%s' not found", name)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &storageCfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return storageCfg, fmt.Errorf("failed to create decoder for storage config '%s': %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return storageCfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}

// BaseProvider caches the connections of one backend type by name.
type BaseProvider struct {
	cfg         *config.Config
	storageType string
	open        OpenFunc

	mu          sync.RWMutex
	connections map[string]StorageConnection
}

// NewBaseProvider returns a provider opening connections through open.
func NewBaseProvider(cfg *config.Config, storageType string, open OpenFunc) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		open:        open,
		connections: make(map[string]StorageConnection),
	}
}

// Type returns the backend type.
func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection returns the cached connection or opens it.
func (p *BaseProvider) GetConnection(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(ctx, name)
}

func (p *BaseProvider) createAndStoreConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, storageCfg.Type)
	}
	conn, err := p.open(ctx, storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage '%s': %w", p.storageType, name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.storageType, name)
	return conn, nil
}

// ForceReconnect closes the named connection if open and opens it again.
func (p *BaseProvider) ForceReconnect(ctx context.Context, name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close %s storage connection '%s' during reconnect: %v", p.storageType, name, err)
		}
		delete(p.connections, name)
	}
	return p.createAndStoreConnection(ctx, name)
}

// CloseAll closes every cached connection.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.storageType, name, err))
		}
		delete(p.connections, name)
	}
	return result
}

var _ StorageProvider = (*BaseProvider)(nil)
