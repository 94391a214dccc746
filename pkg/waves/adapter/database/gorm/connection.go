package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	dbconfig "github.com/tigerroll/waves/pkg/waves/adapter/database/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// Connection wraps an open *gorm.DB.
type Connection struct {
	db    *gorm.DB
	sqlDB *sql.DB
	cfg   dbconfig.DatabaseConfig
	name  string
}

// NewConnection wraps db under name.
func NewConnection(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*Connection, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &Connection{db: db, sqlDB: sqlDB, cfg: cfg, name: name}, nil
}

func (c *Connection) Name() string { return c.name }

func (c *Connection) Type() string { return c.cfg.Type }

func (c *Connection) Config() dbconfig.DatabaseConfig { return c.cfg }

func (c *Connection) GormDB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *Connection) GetSQLDB() (*sql.DB, error) {
	if c.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return c.sqlDB, nil
}

func (c *Connection) Close() error {
	if c.sqlDB == nil {
		return nil
	}
	logger.Infof("Closing database connection '%s'...", c.name)
	return c.sqlDB.Close()
}

// IsTableNotExistError matches the missing-table error text of each dialect.
func (c *Connection) IsTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	switch c.cfg.Type {
	case "sqlite":
		return strings.Contains(msg, "no such table")
	case "mysql":
		return strings.Contains(msg, "Error 1146") || strings.Contains(msg, "doesn't exist")
	case "postgres":
		return strings.Contains(msg, "42P01") || (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
	}
	return false
}

var _ database.DBConnection = (*Connection)(nil)
