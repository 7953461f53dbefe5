// Package user serves a user's own account: profile, password and
// account deletion. Staff management lives in package admin.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/auth"
	"commerce-backend/internal/config"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
)

type Handler struct {
	store      *store.Store
	reg        *metadata.Registry
	factory    *ability.Factory
	gateway    payment.Gateway
	bcryptCost int
}

func NewHandler(s *store.Store, reg *metadata.Registry, f *ability.Factory, gw payment.Gateway, cfg config.AuthConfig) *Handler {
	return &Handler{store: s, reg: reg, factory: f, gateway: gw, bcryptCost: cfg.BcryptCost}
}

type UpdateUserRequest struct {
	FirstName   *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName    *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,max=20"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	BirthDate   *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// RegisterRoutes mounts /users on r, which must already authenticate.
func RegisterRoutes(r fiber.Router, h *Handler) {
	can := func(a ability.Action, s ability.Subject, fields ...string) fiber.Handler {
		return engine.RequireAbility(h.factory, engine.Require(a, s, fields...))
	}
	g := r.Group("/users")
	g.Get("/current", can(ability.Read, ability.User), h.Current)
	g.Patch("/current/password", can(ability.Update, ability.User, "password"), h.ChangePassword)
	g.Get("/:id", can(ability.Read, ability.User), h.Get)
	g.Patch("/:id", can(ability.Update, ability.UserInfo), h.Update)
	g.Delete("/:id", can(ability.Delete, ability.User), h.Delete)
}

// Current handles GET /users/current.
func (h *Handler) Current(c *fiber.Ctx) error {
	actor := engine.GetActor(c)
	if err := h.authorize(c, ability.Read, ability.User, actor.ID, ""); err != nil {
		return err
	}
	row, err := h.load(c.UserContext(), actor.ID)
	if err != nil {
		return err
	}
	if actor.CustomerID != nil {
		row["customer_id"] = *actor.CustomerID
	}
	return c.JSON(fiber.Map{"data": row})
}

// Get handles GET /users/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, ability.Read, ability.User, id, ""); err != nil {
		return err
	}
	row, err := h.load(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Update handles PATCH /users/:id. Only profile fields are writable here;
// email, role and password have their own routes.
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, ability.Update, ability.UserInfo, id, ""); err != nil {
		return err
	}
	var req UpdateUserRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.load(ctx, id); err != nil {
		return err
	}

	values := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			values[col] = *v
		}
	}
	set("first_name", req.FirstName)
	set("last_name", req.LastName)
	set("phone_number", req.PhoneNumber)
	set("gender", req.Gender)
	set("birth_date", req.BirthDate)
	if len(values) > 0 {
		if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "users", id, values, true); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
	}
	row, err := h.load(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// ChangePassword handles PATCH /users/current/password. The stored refresh
// token is dropped so other sessions must log in again.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	actor := engine.GetActor(c)
	if err := h.authorize(c, ability.Update, ability.User, actor.ID, "password"); err != nil {
		return err
	}
	var req ChangePasswordRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	row, err := store.FindByID(ctx, h.store.DB, h.store.Dialect, "users", []string{"password"}, actor.ID)
	if err != nil {
		return fmt.Errorf("load password: %w", err)
	}
	if !auth.CheckPassword(req.CurrentPassword, store.AsString(row["password"])) {
		return engine.BadRequestError("Current password is incorrect")
	}
	hash, err := auth.HashPassword(req.NewPassword, h.bcryptCost)
	if err != nil {
		return err
	}
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "users", actor.ID,
		map[string]any{"password": hash, "hashed_rt": nil}, true); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "user.password_changed", "user", strconv.FormatInt(actor.ID, 10), nil)
	return c.JSON(fiber.Map{"message": "Password updated"})
}

// Delete handles DELETE /users/:id. A customer's payment account is
// removed after the user row is gone.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, ability.Delete, ability.User, id, ""); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.load(ctx, id); err != nil {
		return err
	}

	var paymentID string
	cust, err := store.FindOneWhere(ctx, h.store.DB, h.store.Dialect, "customers",
		[]string{"payment_customer_id"}, map[string]any{"user_id": id})
	switch {
	case err == nil:
		paymentID = store.AsString(cust["payment_customer_id"])
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("load customer: %w", err)
	}

	if err := store.DeleteRow(ctx, h.store.DB, h.store.Dialect, "users", id); err != nil {
		if appErr := engine.AsAppError(err); appErr != nil {
			return appErr
		}
		return fmt.Errorf("delete user: %w", err)
	}
	if paymentID != "" {
		if err := h.gateway.DeleteCustomer(ctx, paymentID); err != nil {
			slog.WarnContext(ctx, "orphaned payment customer", "payment_customer_id", paymentID, "err", err)
		}
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "user.deleted", "user", strconv.FormatInt(id, 10), nil)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func (h *Handler) authorize(c *fiber.Ctx, action ability.Action, subject ability.Subject, id int64, field string) error {
	return engine.Authorize(c, h.factory, ability.Query{
		Action:   action,
		Subject:  subject,
		Field:    field,
		Instance: ability.Attributes{"id": id},
	})
}

func (h *Handler) load(ctx context.Context, id int64) (map[string]any, error) {
	e := h.reg.GetEntity("user")
	row, err := store.FindByID(ctx, h.store.DB, h.store.Dialect, e.Table, e.VisibleColumns(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFoundError("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return row, nil
}
