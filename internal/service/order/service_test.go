package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	couponrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/coupon"
	orderrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*entity.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[int64]*entity.Order)}
}

func (m *memStore) Create(_ context.Context, order *entity.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.Number == order.Number {
			return fmt.Errorf("duplicate order number %s", order.Number)
		}
	}
	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = order
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *memStore) GetByPaymentRef(_ context.Context, ref string) (*entity.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, order := range m.orders {
		if order.PaymentRef == ref {
			clone := *order
			return &clone, nil
		}
	}
	return nil, orderrepo.ErrNotFound
}

func (m *memStore) ApplyTransition(_ context.Context, orderID int64, change entity.StatusChange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.Status != change.From {
		return false, nil
	}
	order.Status = change.To
	if change.PaymentRef != "" {
		order.PaymentRef = change.PaymentRef
	}
	if change.TrackingNumber != "" {
		order.TrackingNumber = change.TrackingNumber
	}
	order.History = append(order.History, &entity.StatusHistoryEntry{
		OrderID: orderID,
		Status:  change.To,
		Note:    change.Note,
	})
	return true, nil
}

func (m *memStore) SetPaymentRef(_ context.Context, orderID int64, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.Status != entity.StatusPending {
		return false, nil
	}
	order.PaymentRef = ref
	return true, nil
}

func (m *memStore) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, order := range m.orders {
		if order.Status == entity.StatusPending && order.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
		}
		if len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

type memCatalog struct {
	mu       sync.Mutex
	products map[int64]*entity.Product
}

func newMemCatalog(products ...*entity.Product) *memCatalog {
	byID := make(map[int64]*entity.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &memCatalog{products: byID}
}

func (m *memCatalog) ProductsByIDs(_ context.Context, ids []int64) (map[int64]*entity.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*entity.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			clone := *p
			out[id] = &clone
		}
	}
	return out, nil
}

func (m *memCatalog) ReserveStock(_ context.Context, productID int64, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	return true, nil
}

func (m *memCatalog) ReleaseStock(_ context.Context, productID int64, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		p.Stock += qty
	}
	return nil
}

func (m *memCatalog) stock(productID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].Stock
}

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]*entity.Coupon
}

func newMemCoupons(coupons ...*entity.Coupon) *memCoupons {
	byCode := make(map[string]*entity.Coupon, len(coupons))
	for _, c := range coupons {
		byCode[c.Code] = c
	}
	return &memCoupons{coupons: byCode}
}

func (m *memCoupons) GetByCode(_ context.Context, code string) (*entity.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return nil, couponrepo.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memCoupons) ConsumeUse(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return false, nil
	}
	c.UsedCount++
	return true, nil
}

type memSequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

func newMemSequencer() *memSequencer {
	return &memSequencer{counters: make(map[string]int64)}
}

func (m *memSequencer) Next(_ context.Context, entityType, scopeKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entityType + ":" + scopeKey
	m.counters[key]++
	return m.counters[key], nil
}

func testCheckout() config.Checkout {
	return config.Checkout{
		Currency:              "EUR",
		OrderNumberPrefix:     "HL",
		TaxRatePercent:        0,
		FreeShippingThreshold: 10000,
		FlatShippingFee:       599,
		TotalTolerance:        1,
		PendingWindow:         30 * time.Minute,
	}
}

func newTestService(store Store, catalog Catalog, coupons Coupons, seq Sequencer) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		coupons:   coupons,
		sequences: seq,
		logger:    zap.NewNop(),
		checkout:  testCheckout(),
		now:       func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func TestCreateComputesServerSideTotals(t *testing.T) {
	catalog := newMemCatalog(
		&entity.Product{ID: 1, Name: "Screen Kit", Type: "part", Price: 5999, Stock: 10},
		&entity.Product{ID: 2, Name: "Battery", Type: "part", Price: 1999, Stock: 10},
	)
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID: 7,
		Items: []CreateItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		Shipping:      Address{Name: "Jo", Street: "Main 1", City: "Berlin", Zip: "10115", Country: "DE"},
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(13997), order.Subtotal)
	assert.Equal(t, int64(0), order.ShippingFee, "free shipping above threshold")
	assert.Equal(t, int64(13997), order.Total)
	assert.Equal(t, entity.StatusPending, order.Status)
	assert.Equal(t, "HL-20240615-0001", order.Number)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(5999), order.Items[0].UnitPrice, "price snapshotted from catalog")
	require.Len(t, order.History, 1)
	assert.Equal(t, entity.StatusPending, order.History[0].Status)
	assert.Equal(t, 8, catalog.stock(1))
}

func TestCreateChargesFlatShippingBelowThreshold(t *testing.T) {
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Battery", Price: 1999, Stock: 5})
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:        7,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(599), order.ShippingFee)
	assert.Equal(t, int64(2598), order.Total)
}

func TestCreateAppliesCoupon(t *testing.T) {
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 12999, Stock: 5})
	coupons := newMemCoupons(&entity.Coupon{
		Code: "SAVE10", Type: entity.CouponTypeFixed, Amount: 1000, MinOrder: 5000, Active: true,
	})
	svc := newTestService(newMemStore(), catalog, coupons, newMemSequencer())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:        7,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
		CouponCode:    "SAVE10",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), order.Discount)
	assert.Equal(t, int64(11999), order.Total)
	assert.Equal(t, "SAVE10", order.CouponCode)
	assert.Equal(t, 1, coupons.coupons["SAVE10"].UsedCount)
}

func TestCreateRejectsInvalidCoupon(t *testing.T) {
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 12999, Stock: 5})
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID:        7,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
		CouponCode:    "NOPE",
	})
	require.ErrorIs(t, err, ErrCouponInvalid)
	assert.Equal(t, 5, catalog.stock(1), "no stock reserved on rejected claim")
}

func TestCreateReleasesStockOnPartialReservation(t *testing.T) {
	catalog := newMemCatalog(
		&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: 10},
		&entity.Product{ID: 2, Name: "Battery", Price: 1999, Stock: 1},
	)
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	_, err := svc.Create(context.Background(), CreateInput{
		UserID: 7,
		Items: []CreateItem{
			{ProductID: 1, Quantity: 3},
			{ProductID: 2, Quantity: 2},
		},
		PaymentMethod: "card",
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(2), stockErr.ProductID)
	assert.Equal(t, 10, catalog.stock(1), "earlier reservation rolled back")
	assert.Equal(t, 1, catalog.stock(2))
}

func TestCreateTotalIntegrityCheck(t *testing.T) {
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 12999, Stock: 5})
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	within := int64(13000) // computed 12999, tolerance 1
	order, err := svc.Create(context.Background(), CreateInput{
		UserID:        7,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
		ClientTotal:   &within,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12999), order.Total, "server total wins")

	tampered := int64(999)
	_, err = svc.Create(context.Background(), CreateInput{
		UserID:        7,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
		ClientTotal:   &tampered,
	})
	var integrityErr *IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, int64(999), integrityErr.Submitted)
	assert.Equal(t, int64(12999), integrityErr.Computed)
	assert.Equal(t, 4, catalog.stock(1), "reservation released on rejection")
}

func TestCreateConcurrentStockNeverOversells(t *testing.T) {
	const stock = 5
	const attempts = 12

	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: stock})
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), CreateInput{
				UserID:        int64(i + 1),
				Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
				PaymentMethod: "card",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
	}
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, 0, catalog.stock(1))
}

func TestCreateAllocatesUniqueOrderNumbers(t *testing.T) {
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: 100})
	svc := newTestService(newMemStore(), catalog, newMemCoupons(), newMemSequencer())

	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := svc.Create(context.Background(), CreateInput{
				UserID:        1,
				Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
				PaymentMethod: "card",
			})
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[order.Number], "order number %s allocated twice", order.Number)
			seen[order.Number] = true
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 20)
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	store := newMemStore()
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: 5})
	svc := newTestService(store, catalog, newMemCoupons(), newMemSequencer())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:        1,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, entity.StatusProcessing, "paid manually", "")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, updated.Status)

	updated, err = svc.UpdateStatus(context.Background(), order.ID, entity.StatusShipped, "", "TRK-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, updated.Status)
	assert.Equal(t, "TRK-1", updated.TrackingNumber)

	_, err = svc.UpdateStatus(context.Background(), order.ID, entity.StatusCancelled, "", "")
	var staleErr *StaleTransitionError
	require.ErrorAs(t, err, &staleErr)
	assert.Equal(t, entity.StatusShipped, staleErr.Current)

	current, err := svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, current.Status, "illegal transition left state untouched")
}

func TestUpdateStatusDetectsConcurrentChange(t *testing.T) {
	store := newMemStore()
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: 5})
	svc := newTestService(store, catalog, newMemCoupons(), newMemSequencer())

	order, err := svc.Create(context.Background(), CreateInput{
		UserID:        1,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	// Simulate a webhook landing between the admin's read and write.
	applied, err := store.ApplyTransition(context.Background(), order.ID, entity.StatusChange{
		From: entity.StatusPending,
		To:   entity.StatusCancelled,
		Note: "payment failed",
	})
	require.NoError(t, err)
	require.True(t, applied)

	_, err = svc.UpdateStatus(context.Background(), order.ID, entity.StatusProcessing, "", "")
	var staleErr *StaleTransitionError
	require.ErrorAs(t, err, &staleErr)
}

func TestCancelStalePending(t *testing.T) {
	store := newMemStore()
	catalog := newMemCatalog(&entity.Product{ID: 1, Name: "Screen Kit", Price: 5999, Stock: 10})
	svc := newTestService(store, catalog, newMemCoupons(), newMemSequencer())

	stale, err := svc.Create(context.Background(), CreateInput{
		UserID:        1,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	paid, err := svc.Create(context.Background(), CreateInput{
		UserID:        2,
		Items:         []CreateItem{{ProductID: 1, Quantity: 1}},
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	// Both orders were created at the frozen clock; age them past the window,
	// then move one to processing so the sweep must skip it.
	base := svc.now()
	store.mu.Lock()
	store.orders[stale.ID].CreatedAt = base.Add(-time.Hour)
	store.orders[paid.ID].CreatedAt = base.Add(-time.Hour)
	store.mu.Unlock()
	applied, err := store.ApplyTransition(context.Background(), paid.ID, entity.StatusChange{
		From: entity.StatusPending, To: entity.StatusProcessing,
	})
	require.NoError(t, err)
	require.True(t, applied)

	cancelled, err := svc.CancelStalePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	got, err := svc.Get(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, got.Status)
	got, err = svc.Get(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, got.Status)
}

func TestCreateRejectsEmptyAndBadQuantities(t *testing.T) {
	svc := newTestService(newMemStore(), newMemCatalog(), newMemCoupons(), newMemSequencer())

	_, err := svc.Create(context.Background(), CreateInput{UserID: 1})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []CreateItem{{ProductID: 1, Quantity: 0}},
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		UserID: 1,
		Items:  []CreateItem{{ProductID: 99, Quantity: 1}},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCouponInvalid))
}
