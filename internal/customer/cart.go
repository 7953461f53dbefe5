package customer

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/store"
)

type CartItemRequest struct {
	ProductVariantID int64 `json:"product_variant_id" validate:"required,gt=0"`
	Quantity         int   `json:"quantity" validate:"required,gt=0,lte=100"`
}

type AddCartItemsRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=100"`
}

// AddCartItems handles POST /customers/:customer_id/cart-items. Variants
// already in the cart are left untouched.
func (h *Handler) AddCartItems(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Create, ability.ProductCustomer, "", nil)
	if err != nil {
		return err
	}
	var req AddCartItemsRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	var rows []map[string]any
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := h.list(ctx, tx, "cart_item", map[string]any{"customer_id": customerID})
		if err != nil {
			return err
		}
		inCart := make(map[int64]bool, len(existing))
		for _, row := range existing {
			v, _ := store.AsInt64(row["product_variant_id"])
			inCart[v] = true
		}
		for _, item := range req.Items {
			if inCart[item.ProductVariantID] {
				continue
			}
			_, err := store.InsertRow(ctx, tx, h.store.Dialect, "cart_items", map[string]any{
				"customer_id":        customerID,
				"product_variant_id": item.ProductVariantID,
				"quantity":           item.Quantity,
			})
			if errors.Is(err, store.ErrForeignKeyViolation) {
				return engine.BadRequestError("There's an invalid product_variant_id")
			}
			if err != nil {
				return err
			}
			inCart[item.ProductVariantID] = true
		}
		rows, err = h.list(ctx, tx, "cart_item", map[string]any{"customer_id": customerID})
		return err
	})
	if err != nil {
		return writeErr(err, "add cart items")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": rows})
}

// ListCartItems handles GET /customers/:customer_id/cart-items.
func (h *Handler) ListCartItems(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.ProductCustomer, "", nil)
	if err != nil {
		return err
	}
	rows, err := h.list(c.UserContext(), h.store.DB, "cart_item", map[string]any{"customer_id": customerID})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// UpdateCartItem handles PATCH /customers/:customer_id/cart-items/:id.
func (h *Handler) UpdateCartItem(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.ProductCustomer, "quantity", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateCartItemRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "cart_item", customerID, id); err != nil {
		return err
	}
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "cart_items", id, map[string]any{"quantity": req.Quantity}, true); err != nil {
		return writeErr(err, "update cart item")
	}
	row, err := h.one(ctx, h.store.DB, "cart_item", customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// DeleteCartItem handles DELETE /customers/:customer_id/cart-items/:id.
func (h *Handler) DeleteCartItem(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Delete, ability.ProductCustomer, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "cart_item", customerID, id); err != nil {
		return err
	}
	if err := store.DeleteRow(ctx, h.store.DB, h.store.Dialect, "cart_items", id); err != nil {
		return writeErr(err, "delete cart item")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}
