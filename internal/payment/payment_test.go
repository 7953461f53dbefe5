package payment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), toMinorUnits(19.99))
	assert.Equal(t, int64(10), toMinorUnits(0.1))
	assert.Equal(t, int64(0), toMinorUnits(0))
	assert.Equal(t, int64(-250), toMinorUnits(-2.5))
}

func TestParseState(t *testing.T) {
	s, ok := ParseState("SUCCEEDED")
	assert.True(t, ok)
	assert.Equal(t, StateSucceeded, s)

	_, ok = ParseState("succeeded")
	assert.False(t, ok)
}

func TestNew_PicksGateway(t *testing.T) {
	assert.IsType(t, &OfflineGateway{}, New("", "usd"))
	assert.IsType(t, &StripeGateway{}, New("sk_test_123", "usd"))
}

func TestOfflineGateway(t *testing.T) {
	ctx := context.Background()
	g := NewOfflineGateway()

	id, err := g.CreateCustomer(ctx, "Ada Lovelace", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, id, "cus_offline_")

	charge, err := g.ChargeCard(ctx, ChargeRequest{OrderID: 7, Amount: 12.5, PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, charge.State)

	refund, err := g.RefundOrder(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, refund.State)

	require.NoError(t, g.DeleteCustomer(ctx, id))
}
