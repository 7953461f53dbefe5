package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect hides the SQL differences between Postgres and SQLite.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver to open ("pgx" or "sqlite").
	DriverName() string
	NewParamBuilder() ParamBuilder
	NowExpr() string

	// ColumnType maps a metadata field type to a DDL column type.
	ColumnType(fieldType string) string
	// GeneratedKeyColumn is the DDL of an auto-increment integer key.
	GeneratedKeyColumn(name string) string
	EventsTableSQL() string
	TableExists(ctx context.Context, db *sql.DB, table string) (bool, error)
	// GetColumns returns column name to type for an existing table.
	GetColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error)

	// InExpr and NotInExpr bind values through pb. Postgres passes one
	// array parameter, SQLite expands the list.
	InExpr(field string, pb ParamBuilder, values []any) string
	NotInExpr(field string, pb ParamBuilder, values []any) string
	IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days int) string

	// MapError translates constraint failures to ErrUniqueViolation and
	// ErrForeignKeyViolation.
	MapError(err error) error
	// NeedsBoolFix reports whether booleans are read back as integers.
	NeedsBoolFix() bool
}

// ParamBuilder collects query arguments and hands out numbered
// placeholders in the dialect's syntax.
type ParamBuilder interface {
	Add(v any) string
	Params() []any
}

// NewDialect returns the SQLite dialect for "sqlite" and Postgres otherwise.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}

type paramBuilder struct {
	prefix string
	params []any
}

func (p *paramBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("%s%d", p.prefix, len(p.params))
}

func (p *paramBuilder) Params() []any { return p.params }
