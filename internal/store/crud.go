package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// InsertRow inserts values into table and returns the generated id.
func InsertRow(ctx context.Context, q Querier, d Dialect, table string, values map[string]any) (int64, error) {
	cols := sortedKeys(values)
	pb := d.NewParamBuilder()
	phs := make([]string, len(cols))
	for i, c := range cols {
		phs[i] = pb.Add(values[c])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		table, strings.Join(cols, ", "), strings.Join(phs, ", "))

	var id int64
	if err := q.QueryRowContext(ctx, sql, pb.Params()...).Scan(&id); err != nil {
		return 0, d.MapError(err)
	}
	return id, nil
}

// UpdateRow sets values on the row with the given id. updated_at is
// refreshed when touch is true. It returns ErrNotFound when no row matched.
func UpdateRow(ctx context.Context, q Querier, d Dialect, table string, id int64, values map[string]any, touch bool) error {
	cols := sortedKeys(values)
	pb := d.NewParamBuilder()
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", c, pb.Add(values[c])))
	}
	if touch {
		sets = append(sets, "updated_at = "+d.NowExpr())
	}
	if len(sets) == 0 {
		return nil
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), pb.Add(id))
	n, err := Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return d.MapError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRow removes the row with the given id.
func DeleteRow(ctx context.Context, q Querier, d Dialect, table string, id int64) error {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, pb.Add(id))
	n, err := Exec(ctx, q, sql, pb.Params()...)
	if err != nil {
		return d.MapError(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID loads columns of one row by id.
func FindByID(ctx context.Context, q Querier, d Dialect, table string, columns []string, id int64) (map[string]any, error) {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", selectList(columns), table, pb.Add(id))
	return QueryRow(ctx, q, sql, pb.Params()...)
}

// FindWhere loads rows whose columns equal the given values, ordered by id.
func FindWhere(ctx context.Context, q Querier, d Dialect, table string, columns []string, where map[string]any) ([]map[string]any, error) {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s", selectList(columns), table)
	if len(where) > 0 {
		keys := sortedKeys(where)
		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = fmt.Sprintf("%s = %s", k, pb.Add(where[k]))
		}
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return QueryRows(ctx, q, sql+" ORDER BY id ASC", pb.Params()...)
}

// FindOneWhere is FindWhere for a single row; it returns ErrNotFound when
// nothing matches.
func FindOneWhere(ctx context.Context, q Querier, d Dialect, table string, columns []string, where map[string]any) (map[string]any, error) {
	rows, err := FindWhere(ctx, q, d, table, columns, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func selectList(columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	return strings.Join(columns, ", ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
