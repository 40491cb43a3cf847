// Package db provides the relational store for the KPI task system.
//
// Two drivers are supported: the embedded "sqlite" driver (default, stored at
// ~/.kpi/kpi.db) and "pgx" for PostgreSQL. Use Open() to connect and Init()
// to create the schema.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// DB wraps a SQL database connection with task-specific operations.
// Query methods come from the embedded Queries and are also available inside
// a transaction through InTx.
type DB struct {
	*sqlx.DB
	*Queries
}

// Queries holds the store operations. It runs against either the connection
// pool or a single transaction.
type Queries struct {
	ext sqlx.ExtContext
}

func wrap(db *sqlx.DB) *DB {
	return &DB{DB: db, Queries: &Queries{ext: db}}
}

// DefaultPath returns the default database path (~/.kpi/kpi.db)
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".kpi", "kpi.db"), nil
}

// Open opens or creates the database. For sqlite, dsn is a file path; for pgx
// it is a PostgreSQL connection string.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(dsn)
	case DriverPostgres, "postgres":
		db, err := sqlx.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return wrap(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func openSQLite(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	db, err := sqlx.Open(DriverSQLite, "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return wrap(db), nil
}

// Init creates the schema for the connected driver.
func (db *DB) Init(ctx context.Context) error {
	schema := sqliteSchema
	if db.isPostgres() {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (db *DB) isPostgres() bool {
	return db.DriverName() == DriverPostgres
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Queries{ext: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// exec, get and sel take queries written with ? placeholders.
func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ext.ExecContext(ctx, q.ext.Rebind(query), args...)
}

func (q *Queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *Queries) sel(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.ext, dest, q.ext.Rebind(query), args...)
}

// mustAffect returns ErrNotFound-wrapped err when the statement touched no row.
func mustAffect(result sql.Result, what, id string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return notFound(what, id)
	}
	return nil
}

// nullable stores empty strings as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
