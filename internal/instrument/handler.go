package instrument

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/store"
)

// EventHandler serves the recorded events to operators.
type EventHandler struct {
	store *store.Store
}

func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

// RegisterEventRoutes mounts the event endpoints behind guards.
func RegisterEventRoutes(r fiber.Router, h *EventHandler, guards ...fiber.Handler) {
	g := r.Group("/events", guards...)
	g.Get("/", h.List)
	g.Get("/traces/:trace_id", h.GetTrace)
}

var eventFilters = []string{"source", "component", "action", "entity", "event_type", "trace_id", "user_id", "status"}

// List handles GET /events with equality filters and pagination.
func (h *EventHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	pb := h.store.Dialect.NewParamBuilder()

	var where []string
	for _, f := range eventFilters {
		if v := c.Query(f); v != "" {
			where = append(where, fmt.Sprintf("%s = %s", f, pb.Add(v)))
		}
	}
	if v := c.Query("from"); v != "" {
		where = append(where, fmt.Sprintf("created_at >= %s", pb.Add(v)))
	}
	if v := c.Query("to"); v != "" {
		where = append(where, fmt.Sprintf("created_at <= %s", pb.Add(v)))
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	order := "DESC"
	if c.Query("sort") == "created_at" {
		order = "ASC"
	}

	countRow, err := store.QueryRow(ctx, h.store.DB, "SELECT COUNT(*) AS count FROM _events"+whereSQL, pb.Params()...)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	total, _ := store.AsInt64(countRow["count"])

	limit := pb.Add(perPage)
	offset := pb.Add((page - 1) * perPage)
	rows, err := store.QueryRows(ctx, h.store.DB,
		fmt.Sprintf("SELECT * FROM _events%s ORDER BY created_at %s LIMIT %s OFFSET %s", whereSQL, order, limit, offset),
		pb.Params()...)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	decodeMetadata(rows)

	return c.JSON(fiber.Map{
		"data": rows,
		"meta": fiber.Map{"page": page, "per_page": perPage, "total": total},
	})
}

// GetTrace handles GET /events/traces/:trace_id, returning the trace's
// events in chronological order.
func (h *EventHandler) GetTrace(c *fiber.Ctx) error {
	pb := h.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT * FROM _events WHERE trace_id = %s ORDER BY created_at ASC", pb.Add(c.Params("trace_id")))
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, sql, pb.Params()...)
	if err != nil {
		return fmt.Errorf("get trace: %w", err)
	}
	if len(rows) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{"code": "NOT_FOUND", "message": "trace not found"},
		})
	}
	decodeMetadata(rows)

	var total float64
	for _, r := range rows {
		if r["parent_span_id"] == nil {
			total, _ = store.AsFloat64(r["duration_ms"])
		}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"trace_id":          c.Params("trace_id"),
		"spans":             rows,
		"total_duration_ms": total,
	}})
}

func decodeMetadata(rows []map[string]any) {
	for _, r := range rows {
		var raw string
		switch v := r["metadata"].(type) {
		case string:
			raw = v
		case []byte:
			raw = string(v)
		default:
			continue
		}
		var m map[string]any
		if json.Unmarshal([]byte(raw), &m) == nil {
			r["metadata"] = m
		}
	}
}
