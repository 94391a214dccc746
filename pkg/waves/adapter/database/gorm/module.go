package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
)

// Module provides the connection resolver. The dialect modules contribute
// the providers.
var Module = fx.Options(
	fx.Provide(
		NewResolver,
		func(r *Resolver) database.DBConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return r.CloseAll() },
		})
	}),
)
