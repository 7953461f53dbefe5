package store

import (
	"context"
	"fmt"
	"strings"

	"commerce-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateAll migrates entities in order.
func (m *Migrator) MigrateAll(ctx context.Context, entities []*metadata.Entity) error {
	for _, e := range entities {
		if err := m.Migrate(ctx, e); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Name, err)
		}
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	cols := make([]string, 0, len(entity.Fields))
	for i := range entity.Fields {
		cols = append(cols, m.buildColumnDef(entity, &entity.Fields[i]))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		// Added columns stay nullable so existing rows remain valid.
		colType := m.store.Dialect.ColumnType(f.Type)
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", entity.Table, f.Name, colType)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, f.Name, err)
		}
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}

	return nil
}

func (m *Migrator) buildColumnDef(entity *metadata.Entity, f *metadata.Field) string {
	d := m.store.Dialect
	if f.Name == entity.PrimaryKey.Field {
		if entity.PrimaryKey.Generated {
			return d.GeneratedKeyColumn(f.Name)
		}
		return f.Name + " " + d.ColumnType(f.Type) + " PRIMARY KEY"
	}

	col := f.Name + " " + d.ColumnType(f.Type)

	if (f.Required && !f.Nullable) || f.IsAuto() {
		col += " NOT NULL"
	}

	switch {
	case f.IsAuto():
		col += fmt.Sprintf(" DEFAULT (%s)", d.NowExpr())
	case f.Default != nil:
		col += " DEFAULT " + literal(f.Default)
	}

	if r := f.References; r != nil {
		col += fmt.Sprintf(" REFERENCES %s(%s)", r.Table, r.Column)
		if r.OnDelete != "" {
			col += " ON DELETE " + r.OnDelete
		}
	}

	return col
}

func literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}

	for _, cols := range entity.UniqueTogether {
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, strings.Join(cols, "_"), entity.Table, strings.Join(cols, ", "))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s(%s): %w", entity.Table, strings.Join(cols, ", "), err)
		}
	}

	for _, f := range entity.Fields {
		if f.References == nil || f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}

	return nil
}
