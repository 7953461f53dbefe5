// Package customer serves the resources a customer owns: addresses, cart,
// wishlists and browsing history. Every route lives under
// /customers/:customer_id and is authorized against that id before
// storage is read.
package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/store"
)

type Handler struct {
	store   *store.Store
	reg     *metadata.Registry
	factory *ability.Factory
}

func NewHandler(s *store.Store, reg *metadata.Registry, f *ability.Factory) *Handler {
	return &Handler{store: s, reg: reg, factory: f}
}

// RegisterRoutes mounts the customer resources on r, which must already
// authenticate.
func RegisterRoutes(r fiber.Router, h *Handler) {
	can := func(a ability.Action, s ability.Subject) fiber.Handler {
		return engine.RequireAbility(h.factory, engine.Require(a, s))
	}
	g := r.Group("/customers/:customer_id")

	addr := g.Group("/addresses")
	addr.Post("/", can(ability.Create, ability.Address), h.CreateAddress)
	addr.Get("/", can(ability.Read, ability.Address), h.ListAddresses)
	addr.Get("/:id", can(ability.Read, ability.Address), h.GetAddress)
	addr.Patch("/:id", can(ability.Update, ability.Address), h.UpdateAddress)
	addr.Patch("/:id/default", can(ability.Update, ability.Address), h.SetDefaultAddress)
	addr.Delete("/:id", can(ability.Delete, ability.Address), h.DeleteAddress)

	cart := g.Group("/cart-items")
	cart.Post("/", can(ability.Create, ability.ProductCustomer), h.AddCartItems)
	cart.Get("/", can(ability.Read, ability.ProductCustomer), h.ListCartItems)
	cart.Patch("/:id", can(ability.Update, ability.ProductCustomer), h.UpdateCartItem)
	cart.Delete("/:id", can(ability.Delete, ability.ProductCustomer), h.DeleteCartItem)

	wl := g.Group("/wishlists")
	wl.Post("/", can(ability.Create, ability.Wishlist), h.CreateWishlist)
	wl.Get("/", can(ability.Read, ability.Wishlist), h.ListWishlists)
	wl.Get("/:id", can(ability.Read, ability.Wishlist), h.GetWishlist)
	wl.Patch("/:id", can(ability.Update, ability.Wishlist), h.UpdateWishlist)
	wl.Delete("/:id", can(ability.Delete, ability.Wishlist), h.DeleteWishlist)
	wl.Post("/:id/items", can(ability.Update, ability.Wishlist), h.AddWishlistItem)
	wl.Delete("/:id/items/:product_id", can(ability.Update, ability.Wishlist), h.RemoveWishlistItem)

	hist := g.Group("/history")
	hist.Post("/", can(ability.Create, ability.History), h.AddHistoryEntry)
	hist.Get("/", can(ability.Read, ability.History), h.ListHistory)
}

// scope authorizes the request against the path's customer and checks the
// customer exists. The instance carries customer_id plus any attributes the
// caller already knows.
func (h *Handler) scope(c *fiber.Ctx, action ability.Action, subject ability.Subject, field string, extra ability.Attributes) (int64, error) {
	customerID, err := engine.ParamID(c, "customer_id")
	if err != nil {
		return 0, err
	}
	inst := ability.Attributes{"customer_id": customerID}
	for k, v := range extra {
		inst[k] = v
	}
	q := ability.Query{Action: action, Subject: subject, Instance: inst, Field: field}
	if err := engine.Authorize(c, h.factory, q); err != nil {
		return 0, err
	}

	_, err = store.FindByID(c.UserContext(), h.store.DB, h.store.Dialect, "customers", []string{"id"}, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, engine.NotFoundError("customer", customerID)
	}
	if err != nil {
		return 0, fmt.Errorf("load customer: %w", err)
	}
	return customerID, nil
}

func (h *Handler) entity(name string) *metadata.Entity {
	e := h.reg.GetEntity(name)
	if e == nil {
		panic("customer: entity not registered: " + name)
	}
	return e
}

// list returns the visible columns of entity rows matching where.
func (h *Handler) list(ctx context.Context, q store.Querier, name string, where map[string]any) ([]map[string]any, error) {
	e := h.entity(name)
	rows, err := store.FindWhere(ctx, q, h.store.Dialect, e.Table, e.VisibleColumns(), where)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, e.BoolFields())
	}
	return rows, nil
}

// one returns the single row with id owned by customerID, or a 404.
func (h *Handler) one(ctx context.Context, q store.Querier, name string, customerID, id int64) (map[string]any, error) {
	rows, err := h.list(ctx, q, name, map[string]any{"id": id, "customer_id": customerID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, engine.NotFoundError(name, id)
	}
	return rows[0], nil
}

// writeErr turns store constraint errors into HTTP errors.
func writeErr(err error, what string) error {
	if appErr := engine.AsAppError(err); appErr != nil {
		return appErr
	}
	return fmt.Errorf("%s: %w", what, err)
}
