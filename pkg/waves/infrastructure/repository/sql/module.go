package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	"github.com/tigerroll/waves/pkg/waves/core/config"
	repository "github.com/tigerroll/waves/pkg/waves/core/domain/repository"
)

// NewSQLJobRepositoryProvider binds the repository to infrastructure.database_ref.
func NewSQLJobRepositoryProvider(resolver database.DBConnectionResolver, cfg *config.Config) repository.JobRepository {
	return NewSQLJobRepository(resolver, cfg.Waves.Infrastructure.DatabaseRef)
}

// Module provides SQLJobRepository as the repository.JobRepository.
var Module = fx.Options(
	fx.Provide(NewSQLJobRepositoryProvider),
)
