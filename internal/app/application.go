// Package app assembles the WAVES components into an fx application and
// runs it either as the long-lived daemon or for one CLI command.
package app

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adaptor/loader"
	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	gormadapter "github.com/tigerroll/waves/pkg/waves/adapter/database/gorm"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/mysql"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/postgres"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/sqlite"
	"github.com/tigerroll/waves/pkg/waves/adapter/migration"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage/gcs"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage/local"
	"github.com/tigerroll/waves/pkg/waves/adapter/storage/s3"
	config "github.com/tigerroll/waves/pkg/waves/core/config"
	model "github.com/tigerroll/waves/pkg/waves/core/domain/model"
	"github.com/tigerroll/waves/pkg/waves/core/domain/repository"
	"github.com/tigerroll/waves/pkg/waves/core/job/retry"
	"github.com/tigerroll/waves/pkg/waves/core/job/runner"
	"github.com/tigerroll/waves/pkg/waves/core/job/scheduler"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/metrics"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/export"
	inframetrics "github.com/tigerroll/waves/pkg/waves/infrastructure/metrics"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/waves/pkg/waves/infrastructure/repository/sql"
	"github.com/tigerroll/waves/pkg/waves/listener"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// HealthCheckGroup is the fx value group collecting the HealthCheckers
// reported by /healthz.
const HealthCheckGroup = "health_checks"

// NewMachine creates the state machine the listeners attach to.
func NewMachine() *statemachine.Machine {
	return statemachine.New()
}

// NewRetryPolicy builds the policy from the jobs section.
func NewRetryPolicy(cfg *config.Config) retry.RetryPolicy {
	return retry.NewDefaultRetryPolicyFactory().Create(RetrySettings(cfg))
}

// NewWorkdir roots the job working directories at jobs.base_dir.
func NewWorkdir(cfg *config.Config) *workdir.Manager {
	return workdir.NewManager(cfg.Waves.Jobs.BaseDir)
}

type runnerParams struct {
	fx.In
	Cfg      *config.Config
	Repo     repository.JobRepository
	Loader   *loader.Loader
	Machine  *statemachine.Machine
	Policy   retry.RetryPolicy
	Workdir  *workdir.Manager
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewJobRunner binds the runner to the configured runners and lease settings.
func NewJobRunner(p runnerParams) *runner.JobRunner {
	return runner.NewJobRunner(p.Repo, p.Loader, p.Machine, p.Policy, p.Workdir, p.Recorder, p.Tracer,
		runner.WithOwner(LeaseOwner()),
		runner.WithLeaseTTL(p.Cfg.Waves.Jobs.LeaseTTL()),
		runner.WithDefinitions(Definitions(p.Cfg)),
	)
}

// NewScheduler creates the tick loop over the runner.
func NewScheduler(r *runner.JobRunner, cfg *config.Config) *scheduler.Scheduler {
	return scheduler.New(r, SchedulerSettings(cfg))
}

// NewHistoryExporter creates the exporter from the export section.
func NewHistoryExporter(repo repository.JobRepository, resolver storage.StorageConnectionResolver, cfg *config.Config) (*export.HistoryExporter, error) {
	return export.NewHistoryExporter(repo, resolver, ExportSettings(cfg))
}

// repositoryCheck reports whether the job repository answers queries.
type repositoryCheck struct {
	repo repository.JobRepository
}

func (c repositoryCheck) Name() string { return "repository" }

func (c repositoryCheck) Check(ctx context.Context) error {
	_, err := c.repo.FindJobsByStatus(ctx, 1, model.PendingStatuses...)
	return err
}

// NewRepositoryHealthCheck wraps the repository as a HealthChecker.
func NewRepositoryHealthCheck(repo repository.JobRepository) HealthChecker {
	return repositoryCheck{repo: repo}
}

// databaseCheck pings the metadata connection.
type databaseCheck struct {
	resolver database.DBConnectionResolver
	name     string
}

func (c databaseCheck) Name() string { return "database" }

func (c databaseCheck) Check(ctx context.Context) error {
	_, err := c.resolver.ResolveDBConnection(ctx, c.name)
	return err
}

// NewDatabaseHealthCheck pings infrastructure.database_ref.
func NewDatabaseHealthCheck(resolver database.DBConnectionResolver, cfg *config.Config) HealthChecker {
	return databaseCheck{resolver: resolver, name: cfg.Waves.Infrastructure.DatabaseRef}
}

// RegisterMigration applies the pending migrations of the metadata
// database on start when infrastructure.auto_migrate is set.
func RegisterMigration(lc fx.Lifecycle, resolver database.DBConnectionResolver, cfg *config.Config) {
	if !cfg.Waves.Infrastructure.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			conn, err := resolver.ResolveDBConnection(ctx, cfg.Waves.Infrastructure.DatabaseRef)
			if err != nil {
				return err
			}
			return migration.NewMigrator(conn).Up(ctx)
		},
	})
}

func repositoryModule(cfg *config.Config) fx.Option {
	if cfg.Waves.Infrastructure.Repository == config.RepositoryInMemory {
		logger.Warnf("Using the in-memory job repository: jobs are lost on exit.")
		return inmemory.Module
	}
	return fx.Options(
		sqlite.Module,
		mysql.Module,
		postgres.Module,
		gormadapter.Module,
		sqlrepo.Module,
		fx.Provide(fx.Annotate(NewDatabaseHealthCheck, fx.ResultTags(`group:"`+HealthCheckGroup+`"`))),
		fx.Invoke(RegisterMigration),
	)
}

// Options returns the fx graph shared by every command.
func Options(cfg *config.Config) fx.Option {
	return fx.Options(
		logger.Module,
		fx.Supply(cfg),
		config.Module,
		metrics.Module,
		inframetrics.Module,
		fx.Provide(NewMachine),
		listener.Module,
		fx.Provide(loader.NewFromConfig),
		fx.Provide(
			NewRetryPolicy,
			NewWorkdir,
			NewJobRunner,
			NewScheduler,
			NewHistoryExporter,
		),
		fx.Provide(fx.Annotate(NewRepositoryHealthCheck, fx.ResultTags(`group:"`+HealthCheckGroup+`"`))),
		storage.Module,
		local.Module,
		s3.Module,
		gcs.Module,
		repositoryModule(cfg),
	)
}

// Execute starts the application with targets populated, calls run and
// stops the application again.
func Execute(ctx context.Context, cfg *config.Config, run func(context.Context) error, targets ...interface{}) error {
	fxApp := fx.New(Options(cfg), fx.Populate(targets...))
	return runApp(ctx, fxApp, run)
}

// Serve runs the scheduler and the ops server until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config) error {
	fxApp := fx.New(
		Options(cfg),
		fx.Provide(NewOpsRouter, NewOpsServer),
		fx.Invoke(RegisterDaemon),
	)
	return runApp(ctx, fxApp, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			logger.Infof("Shutdown requested.")
		case sig := <-fxApp.Done():
			logger.Infof("Received signal '%v'.", sig)
		}
		return nil
	})
}

func runApp(ctx context.Context, fxApp *fx.App, run func(context.Context) error) error {
	if err := fxApp.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}

	runErr := run(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer cancelStop()
	var result *multierror.Error
	if runErr != nil {
		result = multierror.Append(result, runErr)
	}
	if err := fxApp.Stop(stopCtx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
