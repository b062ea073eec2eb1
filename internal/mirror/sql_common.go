package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kalshidune/internal/etl"
	"kalshidune/internal/schema"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	db         *sql.DB
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	if driverName == "sqlite" {
		// SQLite serializes writers anyway
		db.SetMaxOpenConns(1)
	}
	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) EnsureTable(ctx context.Context, table schema.Table) error {
	defs := make([]string, 0, len(table.Columns))
	for _, col := range table.Columns {
		defs = append(defs, col.Name+" "+c.columnType(col.Type))
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table.Name, strings.Join(defs, ", "))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table.Name, err)
	}
	return nil
}

// columnType maps a warehouse column type to the driver's dialect.
func (c *sqlConnector) columnType(t string) string {
	switch c.driverName {
	case "postgres":
		switch t {
		case schema.TypeInteger:
			return "BIGINT"
		case schema.TypeDouble:
			return "DOUBLE PRECISION"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	case "mysql":
		switch t {
		case schema.TypeInteger:
			return "BIGINT"
		case schema.TypeDouble:
			return "DOUBLE"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	default: // sqlite
		switch t {
		case schema.TypeInteger:
			return "INTEGER"
		case schema.TypeDouble:
			return "REAL"
		case schema.TypeBoolean:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	}
}

func (c *sqlConnector) Clear(ctx context.Context, table string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

func (c *sqlConnector) InsertRows(ctx context.Context, table string, sch *etl.Schema, records []etl.Record) error {
	if len(records) == 0 {
		return nil
	}

	fields := sch.FieldNames()
	marks := make([]string, len(fields))
	for i := range marks {
		marks[i] = c.placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(fields, ", "), strings.Join(marks, ", "))

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		args := make([]any, len(sch.Fields))
		for j, f := range sch.Fields {
			args[j] = bindValue(f, rec.Data[f.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// placeholder returns the driver's bind marker for position n.
func (c *sqlConnector) placeholder(n int) string {
	if c.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// bindValue coerces a record value for a typed column. Uploaded rows
// carry empty strings where the warehouse expects nulls; a typed
// column cannot take "", so it becomes NULL here.
func bindValue(f etl.Field, v any) any {
	if s, ok := v.(string); ok && s == "" && f.Type != "text" {
		return nil
	}
	return v
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
