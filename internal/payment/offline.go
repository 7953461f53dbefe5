package payment

import (
	"context"

	"github.com/google/uuid"
)

// OfflineGateway stands in for the processor when no secret key is
// configured. Charges and refunds always succeed.
type OfflineGateway struct{}

func NewOfflineGateway() *OfflineGateway {
	return &OfflineGateway{}
}

func (g *OfflineGateway) CreateCustomer(_ context.Context, _, _ string) (string, error) {
	return "cus_offline_" + uuid.NewString(), nil
}

func (g *OfflineGateway) DeleteCustomer(context.Context, string) error { return nil }

func (g *OfflineGateway) ChargeCard(_ context.Context, _ ChargeRequest) (*Charge, error) {
	return &Charge{ID: "pi_offline_" + uuid.NewString(), State: StateSucceeded}, nil
}

func (g *OfflineGateway) RefundOrder(_ context.Context, _ int64) (*Refund, error) {
	return &Refund{ID: "re_offline_" + uuid.NewString(), State: StateSucceeded}, nil
}

// New picks the Stripe gateway when a secret key is set.
func New(secretKey, currency string) Gateway {
	if secretKey == "" {
		return NewOfflineGateway()
	}
	return NewStripeGateway(secretKey, currency)
}
