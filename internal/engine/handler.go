package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

// Handler serves CRUD for metadata-described catalog entities.
type Handler struct {
	store   *store.Store
	reg     *metadata.Registry
	factory *ability.Factory
}

func NewHandler(s *store.Store, reg *metadata.Registry, f *ability.Factory) *Handler {
	return &Handler{store: s, reg: reg, factory: f}
}

// List handles GET /api/<route> and nested GET /api/<parent>/:parent_id/<route>.
func (h *Handler) List(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := instrument.GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "engine", "catalog", entity.Name+".list")
		defer span.End()

		plan, err := ParseQueryParams(c, entity)
		if err != nil {
			return err
		}
		if err := h.scopeToParent(ctx, c, entity, plan); err != nil {
			return err
		}

		q := BuildSelectSQL(plan, h.store.Dialect)
		rows, err := store.QueryRows(ctx, h.store.DB, q.SQL, q.Params...)
		if err != nil {
			span.SetStatus("error")
			return fmt.Errorf("list %s: %w", entity.Name, err)
		}
		h.normalize(entity, rows)

		cq := BuildCountSQL(plan, h.store.Dialect)
		countRow, err := store.QueryRow(ctx, h.store.DB, cq.SQL, cq.Params...)
		if err != nil {
			return fmt.Errorf("count %s: %w", entity.Name, err)
		}
		total, _ := store.AsInt64(countRow["count"])

		span.SetStatus("ok")
		return c.JSON(fiber.Map{
			"data": rows,
			"meta": fiber.Map{"page": plan.Page, "per_page": plan.PerPage, "total": total},
		})
	}
}

// Count handles GET /api/<route>/count with the same filters as List.
func (h *Handler) Count(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plan, err := ParseQueryParams(c, entity)
		if err != nil {
			return err
		}
		if err := h.scopeToParent(c.UserContext(), c, entity, plan); err != nil {
			return err
		}
		cq := BuildCountSQL(plan, h.store.Dialect)
		row, err := store.QueryRow(c.UserContext(), h.store.DB, cq.SQL, cq.Params...)
		if err != nil {
			return fmt.Errorf("count %s: %w", entity.Name, err)
		}
		total, _ := store.AsInt64(row["count"])
		return c.JSON(fiber.Map{"data": fiber.Map{"count": total}})
	}
}

// GetByID handles GET /api/<route>/:id.
func (h *Handler) GetByID(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		row, err := h.load(c, entity)
		if err != nil {
			return err
		}
		if err := Authorize(c, h.factory, ability.Query{Action: ability.Read, Subject: entity.Subject, Instance: ability.Attributes(row)}); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": row})
	}
}

// Create handles POST /api/<route>.
func (h *Handler) Create(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := instrument.GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "engine", "catalog", entity.Name+".create")
		defer span.End()

		var body map[string]any
		if err := c.BodyParser(&body); err != nil || body == nil {
			return InvalidPayloadError("Invalid JSON body")
		}
		if entity.Parent != nil {
			parentID, err := h.requireParent(ctx, c, entity)
			if err != nil {
				return err
			}
			body[entity.Parent.Field] = float64(parentID)
		}

		values, errs := prepareWrite(entity, body, true)
		if len(errs) > 0 {
			return ValidationError(errs)
		}
		if errs := EvaluateRules(ctx, entity, values, nil, true); len(errs) > 0 {
			return ValidationError(errs)
		}
		if err := Authorize(c, h.factory, ability.Query{Action: ability.Create, Subject: entity.Subject, Instance: ability.Attributes(values)}); err != nil {
			return err
		}

		id, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, entity.Table, values)
		if err != nil {
			span.SetStatus("error")
			return h.writeError(entity, err)
		}
		row, err := h.fetch(ctx, entity, id)
		if err != nil {
			return err
		}
		span.SetEntity(entity.Name, strconv.FormatInt(id, 10))
		span.SetStatus("ok")
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
	}
}

// Update handles PATCH /api/<route>/:id. Each written field is authorized
// separately against the stored record.
func (h *Handler) Update(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, span := instrument.GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "engine", "catalog", entity.Name+".update")
		defer span.End()

		old, err := h.load(c, entity)
		if err != nil {
			return err
		}
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid JSON body")
		}
		values, errs := prepareWrite(entity, body, false)
		if len(errs) > 0 {
			return ValidationError(errs)
		}
		if errs := EvaluateRules(ctx, entity, values, old, false); len(errs) > 0 {
			return ValidationError(errs)
		}
		for field := range values {
			q := ability.Query{Action: ability.Update, Subject: entity.Subject, Instance: ability.Attributes(old), Field: field}
			if err := Authorize(c, h.factory, q); err != nil {
				return err
			}
		}

		id, _ := store.AsInt64(old["id"])
		if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, entity.Table, id, values, true); err != nil {
			span.SetStatus("error")
			return h.writeError(entity, err)
		}
		row, err := h.fetch(ctx, entity, id)
		if err != nil {
			return err
		}
		span.SetEntity(entity.Name, strconv.FormatInt(id, 10))
		span.SetStatus("ok")
		return c.JSON(fiber.Map{"data": row})
	}
}

// Delete handles DELETE /api/<route>/:id.
func (h *Handler) Delete(entity *metadata.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		old, err := h.load(c, entity)
		if err != nil {
			return err
		}
		if err := Authorize(c, h.factory, ability.Query{Action: ability.Delete, Subject: entity.Subject, Instance: ability.Attributes(old)}); err != nil {
			return err
		}
		id, _ := store.AsInt64(old["id"])
		if err := store.DeleteRow(c.UserContext(), h.store.DB, h.store.Dialect, entity.Table, id); err != nil {
			return h.writeError(entity, err)
		}
		instrument.GetInstrumenter(c.UserContext()).EmitBusinessEvent(c.UserContext(), entity.Name+".deleted", entity.Name, strconv.FormatInt(id, 10), nil)
		return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
	}
}

// load fetches the record named by :id, scoped to :parent_id for nested
// entities.
func (h *Handler) load(c *fiber.Ctx, entity *metadata.Entity) (map[string]any, error) {
	id, err := ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	row, err := h.fetch(c.UserContext(), entity, id)
	if err != nil {
		return nil, err
	}
	if entity.Parent != nil {
		parentID, err := ParamID(c, "parent_id")
		if err != nil {
			return nil, err
		}
		if got, _ := store.AsInt64(row[entity.Parent.Field]); got != parentID {
			return nil, NotFoundError(entity.Name, id)
		}
	}
	return row, nil
}

func (h *Handler) fetch(ctx context.Context, entity *metadata.Entity, id int64) (map[string]any, error) {
	row, err := store.FindByID(ctx, h.store.DB, h.store.Dialect, entity.Table, entity.VisibleColumns(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(entity.Name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", entity.Name, err)
	}
	h.normalize(entity, []map[string]any{row})
	return row, nil
}

func (h *Handler) scopeToParent(ctx context.Context, c *fiber.Ctx, entity *metadata.Entity, plan *QueryPlan) error {
	if entity.Parent == nil {
		return nil
	}
	parentID, err := h.requireParent(ctx, c, entity)
	if err != nil {
		return err
	}
	plan.Filters = append(plan.Filters, WhereClause{Field: entity.Parent.Field, Operator: "eq", Value: parentID})
	return nil
}

func (h *Handler) requireParent(ctx context.Context, c *fiber.Ctx, entity *metadata.Entity) (int64, error) {
	parentID, err := ParamID(c, "parent_id")
	if err != nil {
		return 0, err
	}
	parent := h.reg.GetEntity(entity.Parent.Entity)
	if parent == nil {
		return 0, UnknownEntityError(entity.Parent.Entity)
	}
	if _, err := h.fetch(ctx, parent, parentID); err != nil {
		return 0, err
	}
	return parentID, nil
}

func (h *Handler) normalize(entity *metadata.Entity, rows []map[string]any) {
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, entity.BoolFields())
	}
}

func (h *Handler) writeError(entity *metadata.Entity, err error) error {
	if appErr := AsAppError(err); appErr != nil {
		return appErr
	}
	return fmt.Errorf("write %s: %w", entity.Name, err)
}

// ParamID parses a positive integer path parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequestError(fmt.Sprintf("Invalid %s", name))
	}
	return id, nil
}
