// Package mirror keeps a queryable copy of every uploaded table in a
// local or remote database. Mirroring is best-effort: the pipeline
// logs mirror failures and keeps going, the warehouse upload is the
// source of truth.
package mirror

import (
	"context"
	"fmt"

	"kalshidune/internal/etl"
	"kalshidune/internal/schema"
)

// Supported mirror drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

// Config describes the database the mirror writes to. For SQLite only
// Path is used. For MongoDB, Host may carry a full connection URI
// (Atlas mongodb+srv:// strings work as-is).
type Config struct {
	Driver   string
	Path     string // sqlite database file
	Host     string
	Port     int
	Username string
	Password string
	Database string
	SSLMode  string
}

// Enabled reports whether a mirror is configured at all.
func (c Config) Enabled() bool { return c.Driver != "" }

// Connector abstracts the subset of database operations the mirror
// needs: connectivity checks, typed table creation, full clears, and
// bulk inserts.
type Connector interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// EnsureTable creates the table if it does not exist, with column
	// types mapped to the driver's dialect.
	EnsureTable(ctx context.Context, table schema.Table) error

	// Clear deletes all rows from the table.
	Clear(ctx context.Context, table string) error

	// InsertRows bulk-inserts records, one column per schema field.
	InsertRows(ctx context.Context, table string, schema *etl.Schema, records []etl.Record) error

	// Close closes the connection.
	Close() error
}

// Open creates a Connector for the configured driver.
func Open(cfg Config) (Connector, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return newSQLConnector("sqlite", sqliteDSN(cfg))
	case DriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(cfg))
	case DriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(cfg))
	case DriverMongoDB:
		return newMongoConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mirror driver: %s", cfg.Driver)
	}
}
