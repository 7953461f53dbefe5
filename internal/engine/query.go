package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

type QueryPlan struct {
	Entity  *metadata.Entity
	Filters []WhereClause
	Sorts   []OrderClause
	Page    int
	PerPage int
}

type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

type QueryResult struct {
	SQL    string
	Params []any
}

// ParseQueryParams parses filter[field.op]=v, sort=-field,field, page and
// per_page query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, entity *metadata.Entity) (*QueryPlan, error) {
	plan := &QueryPlan{Entity: entity, Page: 1, PerPage: defaultPerPage}

	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		field, op := parseFilterKey(key[7 : len(key)-1])

		f := entity.GetField(field)
		if f == nil || f.Hidden {
			return nil, &AppError{Code: "UNKNOWN_FIELD", Status: 400, Message: fmt.Sprintf("Unknown filter field: %s", field)}
		}
		if !knownOperator(op) {
			return nil, &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: fmt.Sprintf("Unknown filter operator: %s", op)}
		}

		coerced, err := coerceValue(f, val, op)
		if err != nil {
			return nil, &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: fmt.Sprintf("Invalid filter value for %s: %v", field, err)}
		}
		plan.Filters = append(plan.Filters, WhereClause{Field: field, Operator: op, Value: coerced})
	}

	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			dir, field := "ASC", part
			if strings.HasPrefix(part, "-") {
				dir, field = "DESC", part[1:]
			}
			if f := entity.GetField(field); f == nil || f.Hidden {
				return nil, &AppError{Code: "UNKNOWN_FIELD", Status: 400, Message: fmt.Sprintf("Unknown sort field: %s", field)}
			}
			plan.Sorts = append(plan.Sorts, OrderClause{Field: field, Dir: dir})
		}
	}

	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		plan.Page = v
	}
	if v, err := strconv.Atoi(c.Query("per_page")); err == nil && v > 0 {
		plan.PerPage = min(v, maxPerPage)
	}

	return plan, nil
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(plan *QueryPlan, d store.Dialect) QueryResult {
	pb := d.NewParamBuilder()
	entity := plan.Entity

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(entity.VisibleColumns(), ", "), entity.Table)
	sql += whereSQL(plan.Filters, d, pb)

	if len(plan.Sorts) > 0 {
		parts := make([]string, len(plan.Sorts))
		for i, s := range plan.Sorts {
			parts[i] = s.Field + " " + s.Dir
		}
		sql += " ORDER BY " + strings.Join(parts, ", ")
	} else {
		sql += " ORDER BY " + entity.PrimaryKey.Field + " ASC"
	}

	limit := pb.Add(plan.PerPage)
	offset := pb.Add((plan.Page - 1) * plan.PerPage)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds a COUNT query with the same filters as the select.
func BuildCountSQL(plan *QueryPlan, d store.Dialect) QueryResult {
	pb := d.NewParamBuilder()
	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", plan.Entity.Table)
	sql += whereSQL(plan.Filters, d, pb)
	return QueryResult{SQL: sql, Params: pb.Params()}
}

func whereSQL(filters []WhereClause, d store.Dialect, pb store.ParamBuilder) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = buildWhereClause(f, d, pb)
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

var filterOperators = map[string]string{
	"eq": "=", "neq": "!=", "not": "!=",
	"gt": ">", "gte": ">=", "lt": "<", "lte": "<=",
	"like": "LIKE",
}

func knownOperator(op string) bool {
	_, ok := filterOperators[op]
	return ok || op == "in" || op == "not_in"
}

func buildWhereClause(f WhereClause, d store.Dialect, pb store.ParamBuilder) string {
	switch f.Operator {
	case "in":
		vals, _ := f.Value.([]any)
		return d.InExpr(f.Field, pb, vals)
	case "not_in":
		vals, _ := f.Value.([]any)
		return d.NotInExpr(f.Field, pb, vals)
	}
	sqlOp, ok := filterOperators[f.Operator]
	if !ok {
		sqlOp = "="
	}
	return fmt.Sprintf("%s %s %s", f.Field, sqlOp, pb.Add(f.Value))
}

// parseFilterKey splits "price.gte" into ("price", "gte") or "name" into ("name", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// coerceValue converts string query param values to appropriate Go types based on field metadata.
func coerceValue(field *metadata.Field, val string, op string) (any, error) {
	if op == "in" || op == "not_in" {
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	}
	return coerceSingleValue(field, val)
}

func coerceSingleValue(field *metadata.Field, val string) (any, error) {
	switch field.Type {
	case "int", "bigint":
		return strconv.ParseInt(val, 10, 64)
	case "float", "decimal":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		return strconv.ParseBool(val)
	default:
		return val, nil
	}
}
