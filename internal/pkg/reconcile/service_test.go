package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolpay/schoolpay/app/models"
)

// fakeOrderRepo is an in-memory OrderRepository for engine tests.
type fakeOrderRepo struct {
	orders []*models.Order
	nextID uint
}

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{nextID: 1}
	for _, o := range orders {
		_ = repo.Create(o)
	}
	return repo
}

func (r *fakeOrderRepo) Create(order *models.Order) error {
	if order.ID == 0 {
		order.ID = r.nextID
		r.nextID++
	}
	r.orders = append(r.orders, order)
	return nil
}

func (r *fakeOrderRepo) GetByID(id uint) (*models.Order, bool, error) {
	for _, o := range r.orders {
		if o.ID == id {
			return o, true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeOrderRepo) GetByCustomOrderID(ref string) (*models.Order, bool, error) {
	for _, o := range r.orders {
		if o.CustomOrderID == ref {
			return o, true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeOrderRepo) GetByMetadataValue(key, value string) (*models.Order, bool, error) {
	for _, o := range r.orders {
		if o.Metadata()[key] == value {
			return o, true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeOrderRepo) UpdateMetadata(customOrderID, metadataJSON string) error {
	for _, o := range r.orders {
		if o.CustomOrderID == customOrderID {
			o.MetadataJSON = metadataJSON
			return nil
		}
	}
	return nil
}

func (r *fakeOrderRepo) List(schoolID string, offset, limit int) ([]models.Order, int64, error) {
	var out []models.Order
	for _, o := range r.orders {
		if schoolID == "" || o.SchoolID == schoolID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

// fakePaymentRepo is an in-memory PaymentRepository. beforeUpdate, when set,
// runs just before the conditional update and can mutate stored state to
// simulate a concurrent writer.
type fakePaymentRepo struct {
	records      map[string]*models.PaymentRecord
	beforeUpdate func(r *fakePaymentRepo)
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{records: map[string]*models.PaymentRecord{}}
}

func (r *fakePaymentRepo) GetByCustomOrderID(ref string) (*models.PaymentRecord, bool, error) {
	rec, ok := r.records[ref]
	if !ok {
		return nil, false, nil
	}
	clone := *rec
	return &clone, true, nil
}

func (r *fakePaymentRepo) CreateIfAbsent(rec *models.PaymentRecord) (bool, error) {
	if _, ok := r.records[rec.CustomOrderID]; ok {
		return false, nil
	}
	clone := *rec
	r.records[rec.CustomOrderID] = &clone
	return true, nil
}

func (r *fakePaymentRepo) UpdateIfPending(rec *models.PaymentRecord) (bool, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate(r)
	}
	stored, ok := r.records[rec.CustomOrderID]
	if !ok || stored.Status != models.PaymentStatusPending {
		return false, nil
	}
	clone := *rec
	clone.ID = stored.ID
	r.records[rec.CustomOrderID] = &clone
	return true, nil
}

func testOrder() *models.Order {
	return &models.Order{
		ID:            1,
		CustomOrderID: "ORD_2025_001",
		SchoolID:      "SCH_77",
		Gateway:       "edviron",
		Amount:        1800,
	}
}

func TestReconcileFirstEventCreatesRecord(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS", "order_amount": 1800, "transaction_amount": 1800, "transaction_id": "TXN_1"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, models.PaymentStatusSuccess, result.Status)
	assert.Equal(t, "ORD_2025_001", result.CustomOrderID)
	assert.Equal(t, uint(1), result.OrderID)

	rec, found, err := payments.GetByCustomOrderID("ORD_2025_001")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.PaymentStatusSuccess, rec.Status)
	assert.Equal(t, "TXN_1", rec.GatewayRef)
}

func TestReconcileDuplicateTerminalEventSkipped(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	payload := []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS", "order_amount": 1800}
	}`)

	first, err := svc.ProcessRaw(context.Background(), "edviron", payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, first.Outcome)

	second, err := svc.ProcessRaw(context.Background(), "edviron", payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, models.PaymentStatusSuccess, second.Status)
	assert.Equal(t, models.PaymentStatusSuccess, second.PreviousStatus)
}

func TestReconcileTerminalNeverRegresses(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	_, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS", "order_amount": 1800}
	}`))
	require.NoError(t, err)

	// A late FAILED delivery must not overwrite the recorded success.
	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "FAILED", "order_amount": 1800}
	}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)

	rec, _, err := payments.GetByCustomOrderID("ORD_2025_001")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, rec.Status)
}

func TestReconcilePendingAdvancesToTerminal(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	_, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "PENDING", "order_amount": 1800}
	}`))
	require.NoError(t, err)

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS", "order_amount": 1800}
	}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, models.PaymentStatusSuccess, result.Status)
	assert.Equal(t, models.PaymentStatusPending, result.PreviousStatus)
}

func TestReconcileOrderNotFound(t *testing.T) {
	svc := NewService(newFakeOrderRepo(), newFakePaymentRepo())

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_NOBODY",
		"data": {"payment_status": "SUCCESS"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderNotFound, result.Outcome)
	assert.Equal(t, "ORD_NOBODY", result.ExternalRef)
}

func TestReconcileUnknownShapeIsError(t *testing.T) {
	svc := NewService(newFakeOrderRepo(testOrder()), newFakePaymentRepo())

	_, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{"hello": "world"}`))
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestReconcileLostRaceSkips(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	_, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "PENDING", "order_amount": 1800}
	}`))
	require.NoError(t, err)

	// Between the transition check and the conditional update, a concurrent
	// event lands a terminal status. The update must then affect zero rows.
	payments.beforeUpdate = func(r *fakePaymentRepo) {
		r.records["ORD_2025_001"].Status = models.PaymentStatusFailed
		r.beforeUpdate = nil
	}

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS", "order_amount": 1800}
	}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, models.PaymentStatusFailed, result.Status)
}

func TestReconcileAmountFallbackToOrder(t *testing.T) {
	orders := newFakeOrderRepo(testOrder())
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"order_id": "ORD_2025_001",
		"data": {"payment_status": "SUCCESS"}
	}`))
	require.NoError(t, err)

	// Event carried no amounts at all: the order's stored amount backstops
	// both figures.
	assert.Equal(t, 1800.0, result.OrderAmount)
	assert.Equal(t, 1800.0, result.TransactionAmount)
}

func TestReconcileRefreshesOrderMetadata(t *testing.T) {
	order := testOrder()
	orders := newFakeOrderRepo(order)
	payments := newFakePaymentRepo()
	svc := NewService(orders, payments)

	_, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"collect_request_id": "6808bc4888e4e3c84a",
		"status": "SUCCESS",
		"amount": 1800,
		"transaction_id": "TXN_55"
	}`))
	require.NoError(t, err)
	// First delivery cannot resolve via the provider id yet.

	// Seed the alias the way an intake integration would, then reconcile.
	require.NoError(t, order.MergeMetadata(map[string]string{
		models.MetaCollectRequestID: "6808bc4888e4e3c84a",
	}))

	result, err := svc.ProcessRaw(context.Background(), "edviron", []byte(`{
		"collect_request_id": "6808bc4888e4e3c84a",
		"status": "SUCCESS",
		"amount": 1800,
		"transaction_id": "TXN_55"
	}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)
	assert.Equal(t, "ORD_2025_001", result.CustomOrderID)

	meta := order.Metadata()
	assert.Equal(t, "6808bc4888e4e3c84a", meta[models.MetaCollectRequestID])
	assert.Equal(t, "TXN_55", meta[models.MetaProviderPaymentID])
	assert.Equal(t, models.PaymentStatusSuccess, meta[models.MetaLastStatus])
	assert.NotEmpty(t, meta[models.MetaLastWebhookAt])
}
