// Package mysql provides a GORM DBProvider for MySQL databases.
package mysql

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/waves/pkg/waves/adapter/database"
	dbconfig "github.com/tigerroll/waves/pkg/waves/adapter/database/config"
	gormadapter "github.com/tigerroll/waves/pkg/waves/adapter/database/gorm"
	"github.com/tigerroll/waves/pkg/waves/core/config"
)

// Type is the database type handled by this package.
const Type = "mysql"

func init() {
	gormadapter.RegisterDialector(Type, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return gormmysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString formats the go-sql-driver DSN, e.g.
// user:password@tcp(host:3306)/waves?charset=utf8mb4&parseTime=true&loc=UTC.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	dsn.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, Type)
}
