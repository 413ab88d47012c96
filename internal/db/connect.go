// Package db provides GORM connection and migration helpers for the
// snapshot store.
package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// DSN builds a MySQL DSN from host, port and database name.
func DSN(host string, port int, database string) string {
	return fmt.Sprintf("root@tcp(%s:%d)/%s?parseTime=true", host, port, database)
}

// Connect opens a GORM connection for the given backend. SQLite is the
// local default (dsn is a file path or ":memory:"); MySQL takes a full DSN.
func Connect(backend, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	switch backend {
	case BackendSQLite, "":
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: open sqlite %s: %w", dsn, err)
		}
		return gdb, nil
	case BackendMySQL:
		gdb, err := gorm.Open(mysql.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("db: connect mysql: %w", err)
		}
		return gdb, nil
	default:
		return nil, fmt.Errorf("db: unknown backend %q", backend)
	}
}
