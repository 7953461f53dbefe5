package customer

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/store"
)

type WishlistRequest struct {
	Title     string `json:"title" validate:"required,max=100"`
	IsPrivate *bool  `json:"is_private"`
}

type UpdateWishlistRequest struct {
	Title     *string `json:"title" validate:"omitempty,min=1,max=100"`
	IsPrivate *bool   `json:"is_private"`
}

type WishlistItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// CreateWishlist handles POST /customers/:customer_id/wishlists. Wishlists
// are private unless stated otherwise.
func (h *Handler) CreateWishlist(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Create, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	var req WishlistRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	private := true
	if req.IsPrivate != nil {
		private = *req.IsPrivate
	}
	ctx := c.UserContext()

	id, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, "wishlists", map[string]any{
		"customer_id": customerID,
		"title":       req.Title,
		"is_private":  private,
	})
	if err != nil {
		return writeErr(err, "create wishlist")
	}
	row, err := h.wishlist(ctx, customerID, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// ListWishlists handles GET /customers/:customer_id/wishlists.
func (h *Handler) ListWishlists(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	rows, err := h.list(c.UserContext(), h.store.DB, "wishlist", map[string]any{"customer_id": customerID})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetWishlist handles GET /customers/:customer_id/wishlists/:id and
// includes the wished product ids.
func (h *Handler) GetWishlist(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.wishlist(c.UserContext(), customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// UpdateWishlist handles PATCH /customers/:customer_id/wishlists/:id.
func (h *Handler) UpdateWishlist(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateWishlistRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "wishlist", customerID, id); err != nil {
		return err
	}

	values := map[string]any{}
	if req.Title != nil {
		values["title"] = *req.Title
	}
	if req.IsPrivate != nil {
		values["is_private"] = *req.IsPrivate
	}
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "wishlists", id, values, true); err != nil {
		return writeErr(err, "update wishlist")
	}
	row, err := h.wishlist(ctx, customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// DeleteWishlist handles DELETE /customers/:customer_id/wishlists/:id.
func (h *Handler) DeleteWishlist(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Delete, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "wishlist", customerID, id); err != nil {
		return err
	}
	if err := store.DeleteRow(ctx, h.store.DB, h.store.Dialect, "wishlists", id); err != nil {
		return writeErr(err, "delete wishlist")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// AddWishlistItem handles POST /customers/:customer_id/wishlists/:id/items.
// Adding a product twice is a no-op.
func (h *Handler) AddWishlistItem(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req WishlistItemRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "wishlist", customerID, id); err != nil {
		return err
	}

	item := map[string]any{"wishlist_id": id, "product_id": req.ProductID}
	_, err = store.FindOneWhere(ctx, h.store.DB, h.store.Dialect, "wishlist_items", []string{"id"}, item)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, "wishlist_items", item); err != nil {
			if errors.Is(err, store.ErrForeignKeyViolation) {
				return engine.BadRequestError("Invalid product_id")
			}
			return writeErr(err, "add wishlist item")
		}
	case err != nil:
		return err
	}

	row, err := h.wishlist(ctx, customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// RemoveWishlistItem handles DELETE /customers/:customer_id/wishlists/:id/items/:product_id.
func (h *Handler) RemoveWishlistItem(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.Wishlist, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	productID, err := engine.ParamID(c, "product_id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "wishlist", customerID, id); err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		"DELETE FROM wishlist_items WHERE wishlist_id = "+pb.Add(id)+" AND product_id = "+pb.Add(productID), pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.NotFoundError("wishlist_item", productID)
	}
	row, err := h.wishlist(ctx, customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// wishlist loads one wishlist with its product ids.
func (h *Handler) wishlist(ctx context.Context, customerID, id int64) (map[string]any, error) {
	row, err := h.one(ctx, h.store.DB, "wishlist", customerID, id)
	if err != nil {
		return nil, err
	}
	items, err := store.FindWhere(ctx, h.store.DB, h.store.Dialect, "wishlist_items", []string{"product_id"}, map[string]any{"wishlist_id": id})
	if err != nil {
		return nil, err
	}
	products := make([]int64, 0, len(items))
	for _, it := range items {
		if pid, ok := store.AsInt64(it["product_id"]); ok {
			products = append(products, pid)
		}
	}
	row["product_ids"] = products
	return row, nil
}
