// Package payment talks to the card processor. Orders paid in cash never
// reach it.
package payment

import (
	"context"
	"errors"
)

// PaymentState is stored on order transactions.
type PaymentState string

const (
	StateSucceeded PaymentState = "SUCCEEDED"
	StatePending   PaymentState = "PENDING"
	StateFailed    PaymentState = "FAILED"
)

// ParseState maps a state name to a PaymentState.
func ParseState(s string) (PaymentState, bool) {
	switch p := PaymentState(s); p {
	case StateSucceeded, StatePending, StateFailed:
		return p, true
	default:
		return p, false
	}
}

// ErrRefundFailed is returned when the processor rejects a refund.
var ErrRefundFailed = errors.New("refund failed")

// Charge is the result of charging a card.
type Charge struct {
	ID    string
	State PaymentState
}

// Refund is the result of refunding an order's charge.
type Refund struct {
	ID    string
	State PaymentState
}

// ChargeRequest describes a card charge for one order. Amount is in the
// currency's major unit.
type ChargeRequest struct {
	OrderID         int64
	CustomerID      string
	PaymentMethodID string
	Amount          float64
	SaveCard        bool
}

// Gateway is the card processor used by signup, orders and account
// deletion.
type Gateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	ChargeCard(ctx context.Context, req ChargeRequest) (*Charge, error)
	RefundOrder(ctx context.Context, orderID int64) (*Refund, error)
}

// toMinorUnits converts an amount to cents, rounding half away from zero.
func toMinorUnits(amount float64) int64 {
	if amount < 0 {
		return -toMinorUnits(-amount)
	}
	return int64(amount*100 + 0.5)
}
