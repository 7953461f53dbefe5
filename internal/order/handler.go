// Package order turns a customer's cart into orders and drives their
// lifecycle: address changes, status updates, cancellation and refunds.
package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"commerce-backend/internal/ability"
	"commerce-backend/internal/engine"
	"commerce-backend/internal/instrument"
	"commerce-backend/internal/metadata"
	"commerce-backend/internal/payment"
	"commerce-backend/internal/store"
)

// Order statuses. Only customers move an order to CANCELLED.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
)

// Payment types stored on orders.
const (
	PaymentCard = "CARD"
	PaymentCash = "CASH"
)

// Transaction types.
const (
	Credit = "CREDIT"
	Debit  = "DEBIT"
)

type Handler struct {
	store   *store.Store
	reg     *metadata.Registry
	factory *ability.Factory
	gateway payment.Gateway
}

func NewHandler(s *store.Store, reg *metadata.Registry, f *ability.Factory, gw payment.Gateway) *Handler {
	return &Handler{store: s, reg: reg, factory: f, gateway: gw}
}

// RegisterRoutes mounts /customers/:customer_id/orders on r, which must
// already authenticate.
func RegisterRoutes(r fiber.Router, h *Handler) {
	can := func(a ability.Action, s ability.Subject, fields ...string) fiber.Handler {
		return engine.RequireAbility(h.factory, engine.Require(a, s, fields...))
	}
	g := r.Group("/customers/:customer_id/orders")
	g.Post("/", can(ability.Create, ability.Order), h.Create)
	g.Get("/", can(ability.Read, ability.Order), h.List)
	g.Get("/transactions", can(ability.Read, ability.OrderTransaction), h.ListCustomerTransactions)
	g.Get("/:id", can(ability.Read, ability.Order), h.Get)
	g.Get("/:id/transactions", can(ability.Read, ability.OrderTransaction), h.ListTransactions)
	g.Patch("/:id/address", can(ability.Update, ability.Order, "address_id"), h.UpdateAddress)
	g.Patch("/:id/status", can(ability.Update, ability.Order, "status"), h.UpdateStatus)
	g.Patch("/:id/cancel", can(ability.Update, ability.Order, "status"), h.Cancel)
	g.Post("/:id/refund", can(ability.Read, ability.Order), h.Refund)
}

// scope authorizes q against the path's customer and returns the
// customer row.
func (h *Handler) scope(c *fiber.Ctx, q ability.Query) (map[string]any, error) {
	customerID, err := engine.ParamID(c, "customer_id")
	if err != nil {
		return nil, err
	}
	inst := ability.Attributes{"customer_id": customerID}
	for k, v := range q.Instance {
		inst[k] = v
	}
	q.Instance = inst
	if err := engine.Authorize(c, h.factory, q); err != nil {
		return nil, err
	}

	row, err := store.FindByID(c.UserContext(), h.store.DB, h.store.Dialect, "customers",
		[]string{"id", "user_id", "payment_customer_id"}, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NotFoundError("customer", customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return row, nil
}

// List handles GET /customers/:customer_id/orders.
func (h *Handler) List(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.Order})
	if err != nil {
		return err
	}
	rows, err := h.find(c.UserContext(), h.store.DB, "order", map[string]any{"customer_id": cust["id"]})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Get handles GET /customers/:customer_id/orders/:id. The response carries
// the ordered products.
func (h *Handler) Get(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.Order})
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	row, err := h.detail(c.UserContext(), h.store.DB, cust["id"], id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": row})
}

// ListCustomerTransactions handles GET /customers/:customer_id/orders/transactions.
func (h *Handler) ListCustomerTransactions(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.OrderTransaction})
	if err != nil {
		return err
	}
	e := h.entity("order_transaction")
	cols := ""
	for i, col := range e.VisibleColumns() {
		if i > 0 {
			cols += ", "
		}
		cols += "t." + col
	}
	pb := h.store.Dialect.NewParamBuilder()
	q := "SELECT " + cols + " FROM order_transactions t JOIN orders o ON o.id = t.order_id" +
		" WHERE o.customer_id = " + pb.Add(cust["id"]) + " ORDER BY t.id ASC"
	rows, err := store.QueryRows(c.UserContext(), h.store.DB, q, pb.Params()...)
	if err != nil {
		return fmt.Errorf("list customer transactions: %w", err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

// ListTransactions handles GET /customers/:customer_id/orders/:id/transactions.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	cust, err := h.scope(c, ability.Query{Action: ability.Read, Subject: ability.OrderTransaction})
	if err != nil {
		return err
	}
	id, err := engine.ParamID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if _, err := h.one(ctx, h.store.DB, cust["id"], id); err != nil {
		return err
	}
	rows, err := h.find(ctx, h.store.DB, "order_transaction", map[string]any{"order_id": id})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) entity(name string) *metadata.Entity {
	e := h.reg.GetEntity(name)
	if e == nil {
		panic("order: entity not registered: " + name)
	}
	return e
}

func (h *Handler) find(ctx context.Context, q store.Querier, name string, where map[string]any) ([]map[string]any, error) {
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

// one loads an order of the customer, or a 404.
func (h *Handler) one(ctx context.Context, q store.Querier, customerID any, id int64) (map[string]any, error) {
	rows, err := h.find(ctx, q, "order", map[string]any{"id": id, "customer_id": customerID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, engine.NotFoundError("order", id)
	}
	return rows[0], nil
}

func (h *Handler) detail(ctx context.Context, q store.Querier, customerID any, id int64) (map[string]any, error) {
	row, err := h.one(ctx, q, customerID, id)
	if err != nil {
		return nil, err
	}
	products, err := h.find(ctx, q, "order_product", map[string]any{"order_id": id})
	if err != nil {
		return nil, err
	}
	row["products"] = products
	return row, nil
}

// lastTransaction returns the newest transaction of an order, or nil.
func (h *Handler) lastTransaction(ctx context.Context, q store.Querier, orderID int64) (map[string]any, error) {
	rows, err := h.find(ctx, q, "order_transaction", map[string]any{"order_id": orderID})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[len(rows)-1], nil
}

func emit(ctx context.Context, action string, orderID int64, meta map[string]any) {
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, action, "order", strconv.FormatInt(orderID, 10), meta)
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeErr(err error, what string) error {
	if appErr := engine.AsAppError(err); appErr != nil {
		return appErr
	}
	return fmt.Errorf("%s: %w", what, err)
}
