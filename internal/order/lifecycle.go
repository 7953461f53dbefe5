package order

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
)

type UpdateAddressRequest struct {
	AddressID int64 `json:"address_id" validate:"required,gt=0"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING PROCESSING SHIPPED DELIVERED"`
}

type RefundRequest struct {
	PaymentState *string `json:"payment_state" validate:"omitempty,oneof=SUCCEEDED PENDING FAILED"`
}

// UpdateAddress handles PATCH /customers/:customer_id/orders/:id/address.
// Only pending orders can be redirected, and only to the customer's own
// addresses.
func (h *Handler) UpdateAddress(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Update, Subject: ability.Order, Field: "address_id"})
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
	order, err := h.one(ctx, h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	if status := store.AsString(order["status"]); status != StatusPending {
		return engine.BadRequestError(fmt.Sprintf("Cannot update the address of an order with %s status", status))
	}
	_, err = store.FindOneWhere(ctx, h.store.DB, h.store.Dialect, "addresses", []string{"id"},
		map[string]any{"id": req.AddressID, "customer_id": cust["id"]})
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError("address", req.AddressID)
	}
	if err != nil {
		return fmt.Errorf("load address: %w", err)
	}

	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "orders", id, map[string]any{"address_id": req.AddressID}, true); err != nil {
		return writeErr(err, "update order address")
	}
	row, err := h.detail(ctx, h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// UpdateStatus handles PATCH /customers/:customer_id/orders/:id/status.
// The requested status is part of the authorization check; cancelled
// orders are final.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	return h.transition(c, req.Status, "order.status_changed")
}

// Cancel handles PATCH /customers/:customer_id/orders/:id/cancel.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, StatusCancelled, "order.cancelled")
}

// transition moves an order to status. The actor must be able to read the
// order and to set its status to the target value.
func (h *Handler) transition(c *fiber.Ctx, status, event string) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.Order})
	if err != nil {
		return err
	}
	err = engine.Authorize(c, h.factory, ability.Query{
		Action:   ability.Update,
		Subject:  ability.Order,
		Field:    "status",
		Instance: ability.Attributes{"customer_id": cust["id"], "status": status},
	})
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	order, err := h.one(ctx, h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	from := store.AsString(order["status"])
	if from == StatusCancelled {
		return engine.BadRequestError("Cannot update a cancelled order")
	}

	if err := store.UpdateRow(ctx, h.store.DB, h.store.Dialect, "orders", id, map[string]any{"status": status}, true); err != nil {
		return writeErr(err, "update order status")
	}
	emit(ctx, event, id, map[string]any{"from": from, "to": status})
	row, err := h.detail(ctx, h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// Refund handles POST /customers/:customer_id/orders/:id/refund. Only
// cancelled orders whose last transaction succeeded are refunded. Card
// payments go back through the gateway; cash refunds record the state the
// caller reports.
func (h *Handler) Refund(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.Order})
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	var req RefundRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	order, err := h.one(ctx, h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	if status := store.AsString(order["status"]); status != StatusCancelled {
		return engine.BadRequestError(fmt.Sprintf("Order status is %s, and only cancelled orders are refunded", status))
	}
	last, err := h.lastTransaction(ctx, h.store.DB, id)
	if err != nil {
		return err
	}
	if last == nil || store.AsString(last["type"]) != Credit {
		return engine.BadRequestError("Order has no payment to refund")
	}
	if state := store.AsString(last["payment_state"]); state != string(payment.StateSucceeded) {
		return engine.BadRequestError(fmt.Sprintf("The payment state of the order is %s. It cannot be refunded", state))
	}

	txn := map[string]any{"order_id": id, "amount": last["amount"], "type": Debit}
	switch store.AsString(order["payment_type"]) {
	case PaymentCard:
		refund, err := h.gateway.RefundOrder(ctx, id)
		if errors.Is(err, payment.ErrRefundFailed) {
			return engine.BadRequestError(err.Error())
		}
		if err != nil {
			return fmt.Errorf("refund order %d: %w", id, err)
		}
		txn["payment_state"] = string(refund.State)
		txn["payment_id"] = refund.ID
	default:
		if req.PaymentState == nil {
			return engine.BadRequestError("Provide payment_state for cash refunds")
		}
		txn["payment_state"] = *req.PaymentState
	}

	txnID, err := store.InsertRow(ctx, h.store.DB, h.store.Dialect, "order_transactions", txn)
	if err != nil {
		return writeErr(err, "record refund")
	}
	emit(ctx, "order.refunded", id, map[string]any{"amount": last["amount"], "payment_state": txn["payment_state"]})

	row, err := store.FindByID(ctx, h.store.DB, h.store.Dialect, "order_transactions",
		h.entity("order_transaction").VisibleColumns(), txnID)
	if err != nil {
		return fmt.Errorf("load refund transaction: %w", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}
