package customer

import (
	"errors"
	"slices"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/store"
)

type HistoryEntryRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
}

// AddHistoryEntry handles POST /customers/:customer_id/history.
func (h *Handler) AddHistoryEntry(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Create, ability.History, "", nil)
	if err != nil {
		return err
	}
	var req HistoryEntryRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	id, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, "history", map[string]any{
		"customer_id": customerID,
		"product_id":  req.ProductID,
	})
	if errors.Is(err, store.ErrForeignKeyViolation) {
		return engine.NotFoundError("product", req.ProductID)
	}
	if err != nil {
		return writeErr(err, "add history entry")
	}
	row, err := h.one(ctx, h.store.DB, "history", customerID, id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// ListHistory handles GET /customers/:customer_id/history, newest first.
func (h *Handler) ListHistory(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.History, "", nil)
	if err != nil {
		return err
	}
	rows, err := h.list(c.UserContext(), h.store.DB, "history", map[string]any{"customer_id": customerID})
	if err != nil {
		return err
	}
	slices.Reverse(rows)
	return c.JSON(fiber.Map{"data": rows})
}
