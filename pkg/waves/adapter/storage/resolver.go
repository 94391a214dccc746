package storage

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	config "github.com/tigerroll/waves/pkg/waves/core/config"
)

// Resolver picks the provider matching the type of a storage entry.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// ResolverParams are the fx dependencies of NewResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// NewResolver indexes the providers by type.
func NewResolver(p ResolverParams) *Resolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, provider := range p.Providers {
		providers[provider.Type()] = provider
	}
	return &Resolver{providers: providers, cfg: p.Cfg}
}

// ResolveStorageConnection returns the connection configured under name.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("StorageConnectionResolver: %w", err)
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("StorageConnectionResolver: no provider for storage type '%s' (connection '%s')", storageCfg.Type, name)
	}
	return provider.GetConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var result error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

var _ StorageConnectionResolver = (*Resolver)(nil)

// Module provides the resolver; the backend modules contribute the providers.
var Module = fx.Options(
	fx.Provide(
		NewResolver,
		func(r *Resolver) StorageConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return r.CloseAll() },
		})
	}),
)
