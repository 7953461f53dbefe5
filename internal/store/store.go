// Package store is the SQL layer shared by every handler. Rows travel as
// map[string]any keyed by column name.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // "pgx" driver
	_ "modernc.org/sqlite"             // "sqlite" driver

	"commerce-backend/internal/config"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUniqueViolation     = errors.New("unique constraint violation")
	ErrForeignKeyViolation = errors.New("foreign key violation")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// New opens the database described by cfg. The driver defaults to postgres.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	return Open(ctx, driver, cfg.DSN(), cfg.PoolSize)
}

// Open connects with an explicit driver and DSN. SQLite gets a single
// connection with foreign keys enforced, so transactions must route every
// statement through their *sql.Tx.
func Open(ctx context.Context, driver, dsn string, poolSize int) (*Store, error) {
	dialect := NewDialect(driver)
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}

	var setup []string
	switch {
	case dialect.Name() == "sqlite":
		db.SetMaxOpenConns(1)
		setup = []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"}
	case poolSize > 0:
		db.SetMaxOpenConns(poolSize)
	}
	for _, stmt := range setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name(), err)
	}
	return &Store{DB: db, Dialect: dialect}, nil
}

func (s *Store) Close() {
	s.DB.Close()
}

func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, nil)
}

// WithTx commits when fn returns nil and rolls back otherwise. fn's error
// is returned unwrapped so callers can match their own sentinels.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// QueryRows runs a query and returns every row. An empty result is an
// empty, non-nil slice.
func QueryRows(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// QueryRow returns the first row or ErrNotFound.
func QueryRow(ctx context.Context, q Querier, sqlStr string, args ...any) (map[string]any, error) {
	rows, err := QueryRows(ctx, q, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Exec returns the number of affected rows.
func Exec(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// MapError is Dialect.MapError with a nil check.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := []map[string]any{}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for rows.Next() {
		for i := range values {
			values[i] = nil
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

var textTimeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano}

// normalizeValue turns driver values into JSON friendly ones. Byte slices
// holding timestamps become time.Time, other byte slices become strings.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		for _, layout := range textTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return s
	case int32:
		return int64(val)
	default:
		return val
	}
}

// NormalizeBooleans rewrites 0/1 values of the named columns to bool.
// SQLite stores booleans as integers.
func NormalizeBooleans(rows []map[string]any, boolFields []string) {
	if len(boolFields) == 0 {
		return
	}
	for _, row := range rows {
		for _, f := range boolFields {
			switch val := row[f].(type) {
			case int64:
				row[f] = val != 0
			case int:
				row[f] = val != 0
			case float64:
				row[f] = val != 0
			}
		}
	}
}
