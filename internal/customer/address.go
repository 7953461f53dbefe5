package customer

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/store"
)

type AddressRequest struct {
	CityID    int64   `json:"city_id" validate:"required,gt=0"`
	Address1  string  `json:"address1" validate:"required,max=200"`
	Address2  *string `json:"address2" validate:"omitempty,max=200"`
	IsDefault bool    `json:"is_default"`
}

type UpdateAddressRequest struct {
	CityID   *int64  `json:"city_id" validate:"omitempty,gt=0"`
	Address1 *string `json:"address1" validate:"omitempty,min=1,max=200"`
	Address2 *string `json:"address2" validate:"omitempty,max=200"`
}

// CreateAddress handles POST /customers/:customer_id/addresses. A
// customer's first address becomes the default.
func (h *Handler) CreateAddress(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Create, ability.Address, "", nil)
	if err != nil {
		return err
	}
	var req AddressRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()

	var row map[string]any
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := h.list(ctx, tx, "address", map[string]any{"customer_id": customerID})
		if err != nil {
			return err
		}
		isDefault := req.IsDefault || len(existing) == 0
		if isDefault {
			if err := clearDefault(c, tx, h.store.Dialect, customerID); err != nil {
				return err
			}
		}
		values := map[string]any{
			"customer_id": customerID,
			"city_id":     req.CityID,
			"address1":    req.Address1,
			"is_default":  isDefault,
		}
		if req.Address2 != nil {
			values["address2"] = *req.Address2
		}
		id, err := store.InsertRow(ctx, tx, h.store.Dialect, "addresses", values)
		if err != nil {
			return err
		}
		row, err = h.one(ctx, tx, "address", customerID, id)
		return err
	})
	if err != nil {
		return writeErr(err, "create address")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// ListAddresses handles GET /customers/:customer_id/addresses.
func (h *Handler) ListAddresses(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.Address, "", nil)
	if err != nil {
		return err
	}
	rows, err := h.list(c.UserContext(), h.store.DB, "address", map[string]any{"customer_id": customerID})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetAddress handles GET /customers/:customer_id/addresses/:id.
func (h *Handler) GetAddress(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Read, ability.Address, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.one(c.UserContext(), h.store.DB, "address", customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// UpdateAddress handles PATCH /customers/:customer_id/addresses/:id.
func (h *Handler) UpdateAddress(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.Address, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateAddressRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "address", customerID, id); err != nil {
		return err
	}

	values := map[string]any{}
	if req.CityID != nil {
		values["city_id"] = *req.CityID
	}
	if req.Address1 != nil {
		values["address1"] = *req.Address1
	}
	if req.Address2 != nil {
		values["address2"] = *req.Address2
	}
	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "addresses", id, values, true); err != nil {
		return writeErr(err, "update address")
	}
	row, err := h.one(ctx, h.store.DB, "address", customerID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// SetDefaultAddress handles PATCH /customers/:customer_id/addresses/:id/default.
func (h *Handler) SetDefaultAddress(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Update, ability.Address, "is_default", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	var row map[string]any
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := h.one(ctx, tx, "address", customerID, id); err != nil {
			return err
		}
		if err := clearDefault(c, tx, h.store.Dialect, customerID); err != nil {
			return err
		}
		if err := store.UpdateRow(ctx, tx, h.store.Dialect, "addresses", id, map[string]any{"is_default": true}, true); err != nil {
			return err
		}
		row, err = h.one(ctx, tx, "address", customerID, id)
		return err
	})
	if err != nil {
		return writeErr(err, "set default address")
	}
	return c.JSON(fiber.Map{"data": row})
}

// DeleteAddress handles DELETE /customers/:customer_id/addresses/:id.
// Addresses used by an order cannot be deleted.
func (h *Handler) DeleteAddress(c *fiber.Ctx) error {
	customerID, err := h.scope(c, ability.Delete, ability.Address, "", nil)
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, "address", customerID, id); err != nil {
		return err
	}
	if err := store.DeleteRow(ctx, h.store.DB, h.store.Dialect, "addresses", id); err != nil {
		return writeErr(err, "delete address")
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

func clearDefault(c *fiber.Ctx, q store.Querier, d store.Dialect, customerID int64) error {
	pb := d.NewParamBuilder()
	_, err := store.Exec(c.UserContext(), q,
		"UPDATE addresses SET is_default = "+pb.Add(false)+" WHERE customer_id = "+pb.Add(customerID), pb.Params()...)
	return err
}
