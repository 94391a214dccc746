package gorm_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	dbconfig "github.com/tigerroll/waves/pkg/waves/adapter/database/config"
	gormadapter "github.com/tigerroll/waves/pkg/waves/adapter/database/gorm"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/mysql"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/postgres"
	"github.com/tigerroll/waves/pkg/waves/adapter/database/gorm/sqlite"
	"github.com/tigerroll/waves/pkg/waves/core/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.Waves.Database = map[string]interface{}{
		"metadata": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "waves.db"),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
		"reporting": map[string]interface{}{"type": "mysql", "host": "db"},
	}
	return cfg
}

func TestGetConnectionIsCached(t *testing.T) {
	p := sqlite.NewProvider(sqliteConfig(t))
	t.Cleanup(func() { _ = p.CloseAll() })

	conn, err := p.GetConnection("metadata")
	require.NoError(t, err)
	assert.Equal(t, "metadata", conn.Name())
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, 1, conn.Config().Pool.MaxOpenConns)

	again, err := p.GetConnection("metadata")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestGetConnectionErrors(t *testing.T) {
	p := sqlite.NewProvider(sqliteConfig(t))

	_, err := p.GetConnection("absent")
	assert.ErrorContains(t, err, "is not configured")

	_, err = p.GetConnection("reporting")
	assert.ErrorContains(t, err, "provider type mismatch")
}

func TestDecodeDatabaseConfigIsWeaklyTyped(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Waves.Database = map[string]interface{}{
		"reporting": map[string]interface{}{"type": "mysql", "host": "db", "port": "3307"},
		"untyped":   map[string]interface{}{"host": "db"},
	}

	c, err := gormadapter.DecodeDatabaseConfig(cfg, "reporting")
	require.NoError(t, err)
	assert.Equal(t, 3307, c.Port)

	_, err = gormadapter.DecodeDatabaseConfig(cfg, "untyped")
	assert.ErrorContains(t, err, "has no type")
}

func TestForceReconnect(t *testing.T) {
	p := sqlite.NewProvider(sqliteConfig(t))
	t.Cleanup(func() { _ = p.CloseAll() })

	first, err := p.GetConnection("metadata")
	require.NoError(t, err)
	second, err := p.ForceReconnect("metadata")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	sqlDB, err := second.GetSQLDB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
}

func TestResolver(t *testing.T) {
	cfg := sqliteConfig(t)
	r := gormadapter.NewResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { _ = r.CloseAll() })

	conn, err := r.ResolveDBConnection(context.Background(), "metadata")
	require.NoError(t, err)
	assert.NoError(t, conn.GormDB(context.Background()).Exec("SELECT 1").Error)

	_, err = r.ResolveDBConnection(context.Background(), "reporting")
	assert.ErrorContains(t, err, "DBProvider for type 'mysql' not found")
}

func TestIsTableNotExistError(t *testing.T) {
	p := sqlite.NewProvider(sqliteConfig(t))
	t.Cleanup(func() { _ = p.CloseAll() })
	conn, err := p.GetConnection("metadata")
	require.NoError(t, err)

	err = conn.GormDB(context.Background()).Exec("SELECT * FROM nowhere").Error
	require.Error(t, err)
	assert.True(t, conn.IsTableNotExistError(err))
	assert.False(t, conn.IsTableNotExistError(errors.New("disk I/O error")))
	assert.False(t, conn.IsTableNotExistError(nil))
}

func TestConnectionStrings(t *testing.T) {
	c := dbconfig.DatabaseConfig{Host: "db", User: "waves", Password: "secret", Database: "waves"}

	parsed, err := mysqldriver.ParseDSN(mysql.ConnectionString(c))
	require.NoError(t, err)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Equal(t,
		"host=db port=5432 user=waves password=secret dbname=waves sslmode=disable",
		postgres.ConnectionString(c))

	c.Schema = "jobs"
	assert.Contains(t, postgres.ConnectionString(c), "search_path=jobs")
	assert.Equal(t, "file:/tmp/w.db?_foreign_keys=on&_busy_timeout=5000",
		sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "/tmp/w.db"}))
}

func TestUnknownDialector(t *testing.T) {
	_, err := gormadapter.Open(dbconfig.DatabaseConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "no dialector registered")
}
