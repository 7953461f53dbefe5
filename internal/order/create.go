package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
)

type CreateOrderRequest struct {
	AddressID       *int64  `json:"address_id" validate:"omitempty,gt=0"`
	VoucherCode     *string `json:"voucher_code" validate:"omitempty,min=1,max=50"`
	PaymentMethodID *string `json:"payment_method_id" validate:"omitempty,min=1"`
	SaveCard        bool    `json:"save_card"`
}

type cartLine struct {
	variantID int64
	quantity  int64
	price     float64
}

// Create handles POST /customers/:customer_id/orders. The cart becomes
// the order's products, the voucher discount is capped at its upper
// limit, and a card is charged when a payment method is given. The card
// is charged after the order commits, never inside a transaction.
func (h *Handler) Create(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Create, Subject: ability.Order})
	if err != nil {
		return err
	}
	var req CreateOrderRequest
	if err := engine.Bind(c, &req); err != nil {
		return err
	}
	if req.SaveCard && req.PaymentMethodID == nil {
		return engine.ValidationError([]engine.ErrorDetail{{
			Field: "payment_method_id", Rule: "required", Message: "payment_method_id is required to save a card",
		}})
	}
	ctx := c.UserContext()
	customerID, _ := store.AsInt64(cust["id"])

	lines, err := h.cart(ctx, customerID)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return engine.BadRequestError("Cannot make an order because the cart is empty")
	}
	addressID, err := h.orderAddress(ctx, customerID, req.AddressID)
	if err != nil {
		return err
	}
	voucher, err := h.voucher(ctx, req.VoucherCode)
	if err != nil {
		return err
	}

	var subtotal float64
	for _, l := range lines {
		subtotal += float64(l.quantity) * l.price
	}
	subtotal = roundMoney(subtotal)
	discount := 0.0
	if voucher != nil {
		discount = Discount(subtotal, voucher.percentage, voucher.upperLimit)
	}
	total := roundMoney(subtotal - discount)

	paymentType := PaymentCash
	if req.PaymentMethodID != nil {
		paymentType = PaymentCard
		if store.AsString(cust["payment_customer_id"]) == "" {
			return engine.BadRequestError("Customer has no payment account")
		}
	}

	values := map[string]any{
		"customer_id":  customerID,
		"address_id":   addressID,
		"status":       StatusPending,
		"payment_type": paymentType,
		"subtotal":     subtotal,
		"discount":     discount,
		"total":        total,
	}
	if voucher != nil {
		values["voucher_id"] = voucher.id
	}
	// Cash orders finish in one transaction. Card orders keep the cart
	// until the charge is recorded.
	orderID, txnID, err := h.place(ctx, values, lines, paymentType == PaymentCash)
	if err != nil {
		return writeErr(err, "create order")
	}

	if paymentType == PaymentCard {
		// bookkeeping after the charge ignores request cancellation
		after := context.WithoutCancel(ctx)
		charge, err := h.gateway.ChargeCard(ctx, payment.ChargeRequest{
			OrderID:         orderID,
			CustomerID:      store.AsString(cust["payment_customer_id"]),
			PaymentMethodID: *req.PaymentMethodID,
			Amount:          total,
			SaveCard:        req.SaveCard,
		})
		if err != nil {
			slog.Warn("card charge failed", "customer_id", customerID, "order_id", orderID, "error", err)
			h.discard(after, orderID)
			return engine.NewAppError("PAYMENT_FAILED", fiber.StatusPaymentRequired, "The card could not be charged")
		}
		if err := h.settle(after, customerID, txnID, charge); err != nil {
			h.reverse(after, orderID, charge)
			return fmt.Errorf("record charge for order %d: %w", orderID, err)
		}
	}

	emit(ctx, "order.created", orderID, map[string]any{
		"customer_id":  customerID,
		"total":        total,
		"payment_type": paymentType,
	})
	row, err := h.detail(ctx, h.store.DB, customerID, orderID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": row})
}

// place commits the order, its products and a PENDING CREDIT transaction.
// The cart is cleared in the same transaction when clearCart is set.
func (h *Handler) place(ctx context.Context, values map[string]any, lines []cartLine, clearCart bool) (orderID, txnID int64, err error) {
	customerID := values["customer_id"]
	err = h.store.WithTx(ctx, func(tx *sql.Tx) error {
		orderID, err = store.InsertRow(ctx, tx, h.store.Dialect, "orders", values)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := store.InsertRow(ctx, tx, h.store.Dialect, "order_products", map[string]any{
				"order_id":           orderID,
				"product_variant_id": l.variantID,
				"quantity":           l.quantity,
				"price":              l.price,
			}); err != nil {
				return err
			}
		}
		txnID, err = store.InsertRow(ctx, tx, h.store.Dialect, "order_transactions", map[string]any{
			"order_id":      orderID,
			"amount":        values["total"],
			"type":          Credit,
			"payment_state": string(payment.StatePending),
		})
		if err != nil {
			return err
		}
		if !clearCart {
			return nil
		}
		return h.clearCart(ctx, tx, customerID)
	})
	return orderID, txnID, err
}

// settle stores the charge on the order's CREDIT transaction and clears
// the cart.
func (h *Handler) settle(ctx context.Context, customerID, txnID int64, charge *payment.Charge) error {
	state := payment.StatePending
	if charge.State == payment.StateSucceeded {
		state = payment.StateSucceeded
	}
	return h.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.UpdateRow(ctx, tx, h.store.Dialect, "order_transactions", txnID, map[string]any{
			"payment_state": string(state),
			"payment_id":    charge.ID,
		}, true); err != nil {
			return err
		}
		return h.clearCart(ctx, tx, customerID)
	})
}

// reverse refunds a charge whose order could not be completed. The order
// is kept for reconciliation when the refund fails too.
func (h *Handler) reverse(ctx context.Context, orderID int64, charge *payment.Charge) {
	if _, err := h.gateway.RefundOrder(ctx, orderID); err != nil {
		slog.Error("refund of unrecorded charge failed", "order_id", orderID, "payment_id", charge.ID, "error", err)
		return
	}
	slog.Warn("charge refunded after order failure", "order_id", orderID, "payment_id", charge.ID)
	h.discard(ctx, orderID)
}

// discard deletes an order that was never paid. Products and transactions
// cascade.
func (h *Handler) discard(ctx context.Context, orderID int64) {
	if err := store.DeleteRow(ctx, h.store.DB, h.store.Dialect, "orders", orderID); err != nil {
		slog.Error("discard unpaid order", "order_id", orderID, "error", err)
	}
}

func (h *Handler) clearCart(ctx context.Context, q store.Querier, customerID any) error {
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, q, "DELETE FROM cart_items WHERE customer_id = "+pb.Add(customerID), pb.Params()...)
	return err
}

// Discount is pct percent of subtotal, capped at upperLimit.
func Discount(subtotal float64, pct int64, upperLimit float64) float64 {
	d := subtotal * float64(pct) / 100
	if d > upperLimit {
		d = upperLimit
	}
	return roundMoney(d)
}

func (h *Handler) cart(ctx context.Context, customerID int64) ([]cartLine, error) {
	pb := h.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(ctx, h.store.DB,
		"SELECT ci.product_variant_id, ci.quantity, pv.price FROM cart_items ci"+
			" JOIN product_variants pv ON pv.id = ci.product_variant_id"+
			" WHERE ci.customer_id = "+pb.Add(customerID)+" ORDER BY ci.id ASC", pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	lines := make([]cartLine, 0, len(rows))
	for _, r := range rows {
		var l cartLine
		l.variantID, _ = store.AsInt64(r["product_variant_id"])
		l.quantity, _ = store.AsInt64(r["quantity"])
		l.price, _ = store.AsFloat64(r["price"])
		lines = append(lines, l)
	}
	return lines, nil
}

// orderAddress returns the requested address when it belongs to the
// customer, or the customer's default address.
func (h *Handler) orderAddress(ctx context.Context, customerID int64, requested *int64) (int64, error) {
	where := map[string]any{"customer_id": customerID}
	if requested != nil {
		where["id"] = *requested
	} else {
		where["is_default"] = true
	}
	row, err := store.FindOneWhere(ctx, h.store.DB, h.store.Dialect, "addresses", []string{"id"}, where)
	switch {
	case errors.Is(err, store.ErrNotFound) && requested != nil:
		return 0, engine.NotFoundError("address", *requested)
	case errors.Is(err, store.ErrNotFound):
		return 0, engine.BadRequestError("Provide an address_id as the customer has no default address")
	case err != nil:
		return 0, fmt.Errorf("load address: %w", err)
	}
	id, _ := store.AsInt64(row["id"])
	return id, nil
}

type voucherTerms struct {
	id         int64
	percentage int64
	upperLimit float64
}

func (h *Handler) voucher(ctx context.Context, code *string) (*voucherTerms, error) {
	if code == nil {
		return nil, nil
	}
	normalized := strings.ToUpper(strings.TrimSpace(*code))
	row, err := store.FindOneWhere(ctx, h.store.DB, h.store.Dialect, "vouchers",
		[]string{"id", "percentage_discount", "upper_limit"}, map[string]any{"code": normalized})
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFoundError("voucher", normalized)
	}
	if err != nil {
		return nil, fmt.Errorf("load voucher: %w", err)
	}
	v := &voucherTerms{}
	v.id, _ = store.AsInt64(row["id"])
	v.percentage, _ = store.AsInt64(row["percentage_discount"])
	v.upperLimit, _ = store.AsFloat64(row["upper_limit"])
	return v, nil
}
