// Package database declares the connection abstractions shared by the
// metadata repository and the migrator.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/waves/pkg/waves/adapter/database/config"
	"gorm.io/gorm"
)

// DBConnection represents one named, pooled database connection.
type DBConnection interface {
	// Name returns the configuration key the connection was opened from.
	Name() string
	// Type returns the database type, e.g. "sqlite".
	Type() string
	Close() error

	// GormDB returns the GORM handle bound to ctx.
	GormDB(ctx context.Context) *gorm.DB
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
}

// DBProvider opens and caches the connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type served by this provider.
	Type() string
}

// DBConnectionResolver picks the provider for a named connection and hands
// back a live connection.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
