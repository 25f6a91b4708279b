package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolpay/schoolpay/app/models"
)

type fakeGatewayClient struct {
	event *PaymentEvent
	err   error
	calls int
}

func (c *fakeGatewayClient) FetchStatus(ctx context.Context, order *models.Order) (*PaymentEvent, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.event, nil
}

func TestGetStatusUnknownReference(t *testing.T) {
	q := NewQueryService(newFakeOrderRepo(), newFakePaymentRepo(), nil)
	q.DisableCache()

	view, err := q.GetStatus(context.Background(), "ORD_NOBODY")
	require.NoError(t, err)
	assert.False(t, view.Found)
	assert.Equal(t, "unknown", view.Status)
	assert.Equal(t, "none", view.Source)
}

func TestGetStatusPrefersLocalRecord(t *testing.T) {
	payments := newFakePaymentRepo()
	_, err := payments.CreateIfAbsent(&models.PaymentRecord{
		CustomOrderID:     "ORD_2025_001",
		Status:            models.PaymentStatusSuccess,
		OrderAmount:       1800,
		TransactionAmount: 1800,
		PaymentMode:       "upi",
		GatewayRef:        "TXN_1",
	})
	require.NoError(t, err)

	gateway := &fakeGatewayClient{}
	q := NewQueryService(newFakeOrderRepo(testOrder()), payments, gateway)
	q.DisableCache()

	view, err := q.GetStatus(context.Background(), "ORD_2025_001")
	require.NoError(t, err)
	assert.True(t, view.Found)
	assert.Equal(t, models.PaymentStatusSuccess, view.Status)
	assert.Equal(t, "local", view.Source)
	assert.Equal(t, "SCH_77", view.SchoolID)
	// Local state is authoritative; the gateway is never consulted.
	assert.Zero(t, gateway.calls)
}

func TestGetStatusGatewayFallback(t *testing.T) {
	gateway := &fakeGatewayClient{
		event: &PaymentEvent{RawStatus: "SUCCESS", OrderAmount: 1800, PaymentMode: "upi"},
	}
	q := NewQueryService(newFakeOrderRepo(testOrder()), newFakePaymentRepo(), gateway)
	q.DisableCache()

	view, err := q.GetStatus(context.Background(), "ORD_2025_001")
	require.NoError(t, err)
	assert.True(t, view.Found)
	assert.Equal(t, models.PaymentStatusSuccess, view.Status)
	assert.Equal(t, "gateway", view.Source)
	assert.Equal(t, 1800.0, view.OrderAmount)
	assert.Equal(t, 1, gateway.calls)
}

func TestGetStatusGatewayFailureDegradesToPending(t *testing.T) {
	gateway := &fakeGatewayClient{err: errors.New("gateway timeout")}
	q := NewQueryService(newFakeOrderRepo(testOrder()), newFakePaymentRepo(), gateway)
	q.DisableCache()

	view, err := q.GetStatus(context.Background(), "ORD_2025_001")
	require.NoError(t, err)
	assert.True(t, view.Found)
	assert.Equal(t, models.PaymentStatusPending, view.Status)
	assert.Equal(t, "none", view.Source)
	assert.Equal(t, 1800.0, view.OrderAmount)
}

func TestGetStatusNoGatewayConfigured(t *testing.T) {
	q := NewQueryService(newFakeOrderRepo(testOrder()), newFakePaymentRepo(), nil)
	q.DisableCache()

	view, err := q.GetStatus(context.Background(), "ORD_2025_001")
	require.NoError(t, err)
	assert.True(t, view.Found)
	assert.Equal(t, models.PaymentStatusPending, view.Status)
	assert.Equal(t, "none", view.Source)
}
