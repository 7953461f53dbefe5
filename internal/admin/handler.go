// Package admin serves staff management and schema introspection.
package admin

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/auth"
	"commerce-backend/internal/config"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

type Handler struct {
	store      *store.Store
	registry   *metadata.Registry
	factory    *ability.Factory
	entities   *engine.Handler
	bcryptCost int
}

func NewHandler(s *store.Store, reg *metadata.Registry, f *ability.Factory, cfg config.AuthConfig) *Handler {
	return &Handler{
		store:      s,
		registry:   reg,
		factory:    f,
		entities:   engine.NewHandler(s, reg, f),
		bcryptCost: cfg.BcryptCost,
	}
}

type CreateStaffRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Role      string `json:"role" validate:"required,oneof=CUSTOMER ADMIN SUPERADMIN"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=ADMIN SUPERADMIN"`
}

// RegisterRoutes mounts the admin routes on r, which must already
// authenticate. Listing users and reading the schema require access to
// every user.
func RegisterRoutes(r fiber.Router, h *Handler) {
	every := engine.RequireEvery(h.factory, ability.Read, ability.User)

	users := h.registry.GetEntity("user")
	r.Get("/users", every, h.entities.List(users))
	r.Get("/users/count", every, h.entities.Count(users))
	r.Post("/users/admin", engine.RequireAbility(h.factory, engine.Require(ability.Create, ability.User)), h.CreateStaff)
	r.Patch("/users/admin/:id", engine.RequireAbility(h.factory, engine.Require(ability.Update, ability.User, "role")), h.UpdateRole)

	schema := r.Group("/_admin", every)
	schema.Get("/entities", h.ListEntities)
	schema.Get("/entities/:name", h.GetEntity)
}

// CreateStaff handles POST /users/admin. The requested role is part of the
// authorization check, so only staff roles can be created here.
func (h *Handler) CreateStaff(c *fiber.Ctx) error {
	var req CreateStaffRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	if err := engine.Authorize(c, h.factory, ability.Query{
		Action:   ability.Create,
		Subject:  ability.User,
		Instance: ability.Attributes{"role": req.Role},
	}); err != nil {
		return err
	}
	ctx := c.UserContext()

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		return err
	}
	id, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, "users", map[string]any{
		"email":      req.Email,
		"password":   hash,
		"role":       req.Role,
		"first_name": req.FirstName,
		"last_name":  req.LastName,
	})
	if errors.Is(err, store.ErrUniqueViolation) {
		return engine.ConflictError("There is an existing account with that email")
	}
	if err != nil {
		return fmt.Errorf("create staff user: %w", err)
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "user.staff_created", "user", strconv.FormatInt(id, 10),
		map[string]any{"role": req.Role})

	row, err := h.user(c, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// UpdateRole handles PATCH /users/admin/:id. Customers keep their role;
// promoting one would leave a staff account with a customer record.
func (h *Handler) UpdateRole(c *fiber.Ctx) error {
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateRoleRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	if actor := engine.GetActor(c); actor.ID == id {
		return engine.BadRequestError("Cannot change your own role")
	}
	row, err := h.user(c, id)
	if err != nil {
		return err
	}
	if err := engine.Authorize(c, h.factory, ability.Query{
		Action:   ability.Update,
		Subject:  ability.User,
		Field:    "role",
		Instance: ability.Attributes(row),
	}); err != nil {
		return err
	}
	from := store.AsString(row["role"])
	if from == string(ability.RoleCustomer) {
		return engine.BadRequestError("Customer accounts cannot be promoted")
	}

	ctx := c.UserContext()
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "users", id, map[string]any{"role": req.Role}, true); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "user.role_changed", "user", strconv.FormatInt(id, 10),
		map[string]any{"from": from, "to": req.Role})

	row, err = h.user(c, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// ListEntities handles GET /_admin/entities.
func (h *Handler) ListEntities(c *fiber.Ctx) error {
	entities := h.registry.AllEntities()
	out := make([]fiber.Map, 0, len(entities))
	for _, e := range entities {
		out = append(out, fiber.Map{
			"name":    e.Name,
			"table":   e.Table,
			"subject": e.Subject,
			"route":   e.Route,
			"fields":  len(e.Fields),
			"rules":   len(e.Rules),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	return c.JSON(fiber.Map{"data": out})
}

// GetEntity handles GET /_admin/entities/:name.
func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	e := h.registry.GetEntity(name)
	if e == nil {
		return engine.UnknownEntityError(name)
	}
	return c.JSON(fiber.Map{"data": e})
}

func (h *Handler) user(c *fiber.Ctx, id int64) (map[string]any, error) {
	e := h.registry.GetEntity("user")
	row, err := store.FindByID(c.UserContext(), h.store.DB, h.store.Dialect, e.Table, e.VisibleColumns(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFoundError("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return row, nil
}
