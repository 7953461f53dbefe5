package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway charges cards through Stripe payment intents. Each charge
// carries the order id in its metadata so refunds can find it again.
type StripeGateway struct {
	api      *client.API
	currency string
}

func NewStripeGateway(secretKey, currency string) *StripeGateway {
	return &StripeGateway{api: client.New(secretKey, nil), currency: currency}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{Name: stripe.String(name), Email: stripe.String(email)}
	params.Context = ctx
	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if _, err := g.api.Customers.Del(customerID, params); err != nil {
		return fmt.Errorf("stripe delete customer: %w", err)
	}
	return nil
}

func (g *StripeGateway) ChargeCard(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(req.Amount)),
		Currency:      stripe.String(g.currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.SaveCard {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOnSession))
	}
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe charge order %d: %w", req.OrderID, err)
	}
	state := StatePending
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		state = StateSucceeded
	}
	return &Charge{ID: pi.ID, State: state}, nil
}

func (g *StripeGateway) RefundOrder(ctx context.Context, orderID int64) (*Refund, error) {
	search := &stripe.PaymentIntentSearchParams{}
	search.Query = fmt.Sprintf("metadata['order_id']:'%d'", orderID)
	search.Context = ctx
	iter := g.api.PaymentIntents.Search(search)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("stripe find charge for order %d: %w", orderID, err)
		}
		return nil, fmt.Errorf("%w: no charge found for order %d", ErrRefundFailed, orderID)
	}
	pi := iter.PaymentIntent()

	params := &stripe.RefundParams{PaymentIntent: stripe.String(pi.ID)}
	params.Context = ctx
	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund order %d: %w", orderID, err)
	}
	if r.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrRefundFailed, r.FailureReason)
	}
	return &Refund{ID: r.ID, State: refundState(r.Status)}, nil
}

func refundState(s stripe.RefundStatus) PaymentState {
	switch s {
	case stripe.RefundStatusSucceeded:
		return StateSucceeded
	case stripe.RefundStatusFailed:
		return StateFailed
	default:
		return StatePending
	}
}
