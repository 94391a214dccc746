package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// Migrator runs the embedded migrations of one connection's dialect.
type Migrator struct {
	conn      database.DBConnection
	tableName string
}

// NewMigrator creates a Migrator recording its progress in DefaultTable.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn, tableName: DefaultTable}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.conn.Type() {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.tableName})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: m.tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

// run opens a migrate instance, hands it to fn and releases it. The sqlite3
// driver closes the *sql.DB it was given, so only the source is closed there.
func (m *Migrator) run(fn func(*migrate.Migrate) error) error {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	fsys, path, err := Source(m.conn.Type())
	if err != nil {
		return err
	}
	sourceDriver, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		_ = sourceDriver.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		_ = sourceDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer release(m.conn.Type(), mInstance, sourceDriver)
	return fn(mInstance)
}

func release(dbType string, mInstance *migrate.Migrate, src source.Driver) {
	if dbType == "sqlite" {
		_ = src.Close()
		return
	}
	if srcErr, dbErr := mInstance.Close(); srcErr != nil || dbErr != nil {
		logger.Warnf("Failed to release migrate instance: source=%v database=%v", srcErr, dbErr)
	}
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	logger.Infof("Executing migration 'up' on '%s' (%s, table %s)", m.conn.Name(), m.conn.Type(), m.tableName)
	return m.run(func(mi *migrate.Migrate) error {
		if err := mi.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration failed (DB: %s): %w", m.conn.Type(), err)
		}
		logger.Infof("Migration 'up' completed successfully.")
		return nil
	})
}

// Down reverts the given number of migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("down migration needs a positive step count, got %d", steps)
	}
	logger.Infof("Reverting %d migration(s) on '%s'", steps, m.conn.Name())
	return m.run(func(mi *migrate.Migrate) error {
		if err := mi.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration down failed (DB: %s): %w", m.conn.Type(), err)
		}
		return nil
	})
}

// Version returns the applied schema version and whether it is dirty. A
// fresh database reports version 0.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(func(mi *migrate.Migrate) error {
		var err error
		version, dirty, err = mi.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}
