package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	ledgerrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/ledger"
	orderrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[int64]*entity.Order
}

func newFakeOrders(orders ...*entity.Order) *fakeOrders {
	byID := make(map[int64]*entity.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &fakeOrders{orders: byID}
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (f *fakeOrders) FindByPaymentRef(_ context.Context, ref string) (*entity.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.PaymentRef == ref {
			clone := *o
			return &clone, nil
		}
	}
	return nil, orderrepo.ErrNotFound
}

func (f *fakeOrders) Transition(_ context.Context, orderID int64, change entity.StatusChange) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != change.From {
		return false, nil
	}
	o.Status = change.To
	if change.PaymentRef != "" {
		o.PaymentRef = change.PaymentRef
	}
	o.History = append(o.History, &entity.StatusHistoryEntry{OrderID: orderID, Status: change.To, Note: change.Note})
	return true, nil
}

func (f *fakeOrders) AttachPaymentRef(_ context.Context, orderID int64, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.Status != entity.StatusPending {
		return false, nil
	}
	o.PaymentRef = ref
	return true, nil
}

func (f *fakeOrders) status(orderID int64) entity.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[orderID].Status
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*entity.Transaction
}

func (f *fakeLedger) Append(_ context.Context, tx *entity.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, tx)
	return nil
}

func (f *fakeLedger) HasRefund(_ context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.entries {
		if tx.OrderID == orderID && tx.Type == entity.TransactionTypeRefund {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) PurchaseAmount(_ context.Context, orderID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.entries {
		if tx.OrderID == orderID && tx.Type == entity.TransactionTypePurchase && tx.Status == entity.TransactionStatusCompleted {
			return tx.Amount, nil
		}
	}
	return 0, ledgerrepo.ErrNoPurchase
}

func (f *fakeLedger) byType(orderID int64, txType string) []*entity.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Transaction
	for _, tx := range f.entries {
		if tx.OrderID == orderID && tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

type stubProvider struct {
	session Session
	err     error
}

func (p stubProvider) CreateCheckoutSession(context.Context, *entity.Order) (Session, error) {
	return p.session, p.err
}

const testSecret = "whsec_test"

func newTestPaymentService(orders Orders, ledger Ledger, provider Provider) *Service {
	return &Service{
		orders:   orders,
		ledger:   ledger,
		provider: provider,
		cfg: config.Payment{
			WebhookSecret: testSecret,
			SignatureSkew: 5 * time.Minute,
			MaxAttempts:   3,
			RetryBase:     time.Millisecond,
		},
		currency: "EUR",
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func signedEvent(t *testing.T, svc *Service, eventID, kind string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": kind,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return payload, Sign(testSecret, svc.now(), payload)
}

func pendingOrder(id int64, ref string) *entity.Order {
	return &entity.Order{
		ID:            id,
		Number:        fmt.Sprintf("HL-20240615-%04d", id),
		UserID:        7,
		Status:        entity.StatusPending,
		PaymentMethod: "card",
		Total:         12999,
		PaymentRef:    ref,
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc := newTestPaymentService(newFakeOrders(), &fakeLedger{}, stubProvider{})

	payload, _ := signedEvent(t, svc, "evt_1", kindCheckoutCompleted, map[string]any{"id": "cs_1"})
	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=bad")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	orders := newFakeOrders(pendingOrder(1, "cs_1"))
	ledger := &fakeLedger{}
	svc := newTestPaymentService(orders, ledger, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindCheckoutCompleted, map[string]any{
		"id":             "cs_1",
		"payment_intent": "pi_1",
		"amount_total":   12999,
		"currency":       "eur",
	})

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusProcessing, orders.status(1))

	purchases := ledger.byType(1, entity.TransactionTypePurchase)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(12999), purchases[0].Amount)
	assert.Equal(t, "pi_1", purchases[0].ExternalRef)

	// Provider redelivery of the same event.
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusProcessing, orders.status(1))
	assert.Len(t, ledger.byType(1, entity.TransactionTypePurchase), 1)
}

func TestCheckoutCompletedFindsOrderByIntentAfterPartialFailure(t *testing.T) {
	// The transition landed on a previous delivery but the ledger write did
	// not, so the order now carries the intent id, not the session id.
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusProcessing
	orders := newFakeOrders(order)
	ledger := &fakeLedger{}
	svc := newTestPaymentService(orders, ledger, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindCheckoutCompleted, map[string]any{
		"id":             "cs_1",
		"payment_intent": "pi_1",
		"amount_total":   12999,
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))

	assert.Equal(t, entity.StatusProcessing, orders.status(1))
	assert.Len(t, ledger.byType(1, entity.TransactionTypePurchase), 1)
}

func TestCheckoutCompletedDoesNotRegressResolvedOrder(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusShipped
	orders := newFakeOrders(order)
	ledger := &fakeLedger{}
	svc := newTestPaymentService(orders, ledger, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindCheckoutCompleted, map[string]any{
		"id":             "cs_1",
		"payment_intent": "pi_1",
		"amount_total":   12999,
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))

	assert.Equal(t, entity.StatusShipped, orders.status(1))
	assert.Empty(t, ledger.byType(1, entity.TransactionTypePurchase))
}

func TestCheckoutCompletedUnknownOrderIsAcknowledged(t *testing.T) {
	orders := newFakeOrders()
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindCheckoutCompleted, map[string]any{
		"id":             "cs_missing",
		"payment_intent": "pi_missing",
		"amount_total":   500,
	})
	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
}

func TestPaymentFailedCancelsPendingOnly(t *testing.T) {
	orders := newFakeOrders(pendingOrder(1, "pi_1"))
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindPaymentFailed, map[string]any{"id": "pi_1"})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusCancelled, orders.status(1))

	// Replay and late failure events are acknowledged no-ops.
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusCancelled, orders.status(1))
}

func TestPaymentFailedIgnoresResolvedOrder(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusProcessing
	orders := newFakeOrders(order)
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_1", kindPaymentFailed, map[string]any{"id": "pi_1"})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusProcessing, orders.status(1))
}

func TestChargeRefundedNegatesOriginalPurchase(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusProcessing
	orders := newFakeOrders(order)
	ledger := &fakeLedger{}
	require.NoError(t, ledger.Append(context.Background(), &entity.Transaction{
		OrderID: 1, UserID: 7, Amount: 12999,
		Type: entity.TransactionTypePurchase, Status: entity.TransactionStatusCompleted,
	}))
	svc := newTestPaymentService(orders, ledger, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_2", kindChargeRefunded, map[string]any{
		"id":              "ch_1",
		"payment_intent":  "pi_1",
		"amount_refunded": 12999,
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))

	assert.Equal(t, entity.StatusRefunded, orders.status(1))
	refunds := ledger.byType(1, entity.TransactionTypeRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(-12999), refunds[0].Amount, "refund negates the ledger purchase, not the payload")

	// Replay appends nothing.
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Len(t, ledger.byType(1, entity.TransactionTypeRefund), 1)
}

func TestChargeRefundedFromDelivered(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusDelivered
	orders := newFakeOrders(order)
	ledger := &fakeLedger{}
	require.NoError(t, ledger.Append(context.Background(), &entity.Transaction{
		OrderID: 1, Amount: 12999,
		Type: entity.TransactionTypePurchase, Status: entity.TransactionStatusCompleted,
	}))
	svc := newTestPaymentService(orders, ledger, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_2", kindChargeRefunded, map[string]any{
		"id":             "ch_1",
		"payment_intent": "pi_1",
	})
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, entity.StatusRefunded, orders.status(1))
}

func TestChargeRefundedWithoutPurchaseFails(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusProcessing
	orders := newFakeOrders(order)
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_2", kindChargeRefunded, map[string]any{
		"id":             "ch_1",
		"payment_intent": "pi_1",
	})
	err := svc.HandleWebhook(context.Background(), payload, header)
	require.Error(t, err, "missing purchase needs manual reconciliation")
	assert.Equal(t, entity.StatusProcessing, orders.status(1))
}

func TestUnknownEventKindIsAcknowledged(t *testing.T) {
	svc := newTestPaymentService(newFakeOrders(), &fakeLedger{}, stubProvider{})

	payload, header := signedEvent(t, svc, "evt_9", "invoice.finalized", map[string]any{"id": "in_1"})
	assert.NoError(t, svc.HandleWebhook(context.Background(), payload, header))
}

func TestHandleWebhookRejectsMalformedPayload(t *testing.T) {
	svc := newTestPaymentService(newFakeOrders(), &fakeLedger{}, stubProvider{})

	payload := []byte("{not json")
	header := Sign(testSecret, svc.now(), payload)
	assert.Error(t, svc.HandleWebhook(context.Background(), payload, header))
}

func TestCreateSessionAttachesReference(t *testing.T) {
	orders := newFakeOrders(pendingOrder(1, ""))
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{
		session: Session{ID: "cs_new", RedirectURL: "https://pay.example/cs_new"},
	})

	session, err := svc.CreateSession(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", session.ID)

	order, err := orders.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cs_new", order.PaymentRef)
}

func TestCreateSessionRejectsNonPendingOrder(t *testing.T) {
	order := pendingOrder(1, "pi_1")
	order.Status = entity.StatusProcessing
	orders := newFakeOrders(order)
	svc := newTestPaymentService(orders, &fakeLedger{}, stubProvider{session: Session{ID: "cs_new"}})

	_, err := svc.CreateSession(context.Background(), 1)
	require.Error(t, err)
}
