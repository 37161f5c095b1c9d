package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/cache"
	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	"github.com/mustafamuhammed29/handyland-sub001/internal/messaging"
	couponrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/coupon"
	orderrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
	"github.com/mustafamuhammed29/handyland-sub001/internal/repository/sequence"
	"github.com/mustafamuhammed29/handyland-sub001/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/service/order")

// Store is the order persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*entity.Order, error)
	ApplyTransition(ctx context.Context, orderID int64, change entity.StatusChange) (bool, error)
	SetPaymentRef(ctx context.Context, orderID int64, ref string) (bool, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

// Catalog resolves products and moves stock atomically.
type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Product, error)
	ReserveStock(ctx context.Context, productID int64, qty int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, qty int) error
}

// Coupons looks up and consumes discount codes.
type Coupons interface {
	GetByCode(ctx context.Context, code string) (*entity.Coupon, error)
	ConsumeUse(ctx context.Context, code string) (bool, error)
}

// Sequencer allocates the next order number within a scope.
type Sequencer interface {
	Next(ctx context.Context, entityType, scopeKey string) (int64, error)
}

// Service owns the order lifecycle: creation with server-side total
// recomputation and stock reservation, and every status transition.
type Service struct {
	store     Store
	catalog   Catalog
	coupons   Coupons
	sequences Sequencer
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	checkout  config.Checkout
	messaging messagingConfig
	now       func() time.Time
}

// messagingConfig contains messaging specific knobs we care about.
type messagingConfig struct {
	enabled bool
	topic   string
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Store     Store
	Catalog   Catalog
	Coupons   Coupons
	Sequencer Sequencer
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return &Service{
		store:     p.Store,
		catalog:   p.Catalog,
		coupons:   p.Coupons,
		sequences: p.Sequencer,
		cache:     p.Cache,
		cacheTTL:  p.Config.Cache.DefaultTTL,
		logger:    p.Logger,
		publisher: p.Publisher,
		checkout:  p.Config.Checkout,
		messaging: messagingConfig{
			enabled: p.Config.Messaging.Enabled,
			topic:   p.Config.Messaging.Kafka.Topic,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Address is the shipping destination submitted with an order.
type Address struct {
	Name    string
	Street  string
	City    string
	Zip     string
	Country string
}

// CreateItem references a catalog product; the price is resolved
// server-side, the client never supplies it.
type CreateItem struct {
	ProductID int64
	Quantity  int
}

// CreateInput carries a creation request. ClientTotal, when present, is the
// total the client displayed; it is compared against the server-computed
// total as a tamper check and used for nothing else.
type CreateInput struct {
	UserID        int64
	Items         []CreateItem
	Shipping      Address
	PaymentMethod string
	CouponCode    string
	ClientTotal   *int64
}

// Create validates the request, recomputes the canonical total, reserves
// stock all-or-nothing, allocates the order number and persists the order
// as pending with its initial history entry.
func (s *Service) Create(ctx context.Context, input CreateInput) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(attribute.Int("order.items", len(input.Items))))
	defer span.End()

	if len(input.Items) == 0 {
		return nil, errorbank.BadRequest("order must contain at least one item")
	}
	ids := make([]int64, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Quantity < 1 {
			return nil, errorbank.BadRequest("item quantity must be at least 1", errorbank.WithDetail("product_id", item.ProductID))
		}
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "catalog error")
		return nil, errorbank.Internal("failed to resolve products", errorbank.WithCause(err))
	}
	for _, item := range input.Items {
		if _, ok := products[item.ProductID]; !ok {
			return nil, errorbank.BadRequest("unknown product", errorbank.WithDetail("product_id", item.ProductID))
		}
	}

	// Prices come from the catalog at call time; anything the client
	// submitted is display-only.
	var subtotal int64
	lines := make([]*entity.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		p := products[item.ProductID]
		subtotal += p.Price * int64(item.Quantity)
		lines = append(lines, &entity.OrderItem{
			ProductID:   p.ID,
			ProductType: p.Type,
			Name:        p.Name,
			UnitPrice:   p.Price,
			Quantity:    item.Quantity,
		})
	}

	shippingFee := s.shippingFee(subtotal)
	discount, couponCode, err := s.resolveDiscount(ctx, input.CouponCode, subtotal)
	if err != nil {
		return nil, err
	}
	tax := subtotal * s.checkout.TaxRatePercent / 100
	total := subtotal + shippingFee + tax - discount

	if err := s.reserveAll(ctx, input.Items, products); err != nil {
		return nil, err
	}

	if input.ClientTotal != nil {
		if diff := *input.ClientTotal - total; diff > s.checkout.TotalTolerance || diff < -s.checkout.TotalTolerance {
			s.releaseAll(ctx, input.Items)
			s.logger.Warn("order total mismatch, possible tampering",
				zap.Int64("submitted", *input.ClientTotal),
				zap.Int64("computed", total),
			)
			return nil, &IntegrityError{Submitted: *input.ClientTotal, Computed: total}
		}
	}

	now := s.now()
	seq, err := s.sequences.Next(ctx, sequence.EntityOrder, sequence.DateScope(now))
	if err != nil {
		s.releaseAll(ctx, input.Items)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sequence exhausted")
		return nil, errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
	}

	order := &entity.Order{
		Number:          sequence.FormatOrderNumber(s.checkout.OrderNumberPrefix, now, seq),
		UserID:          input.UserID,
		Status:          entity.StatusPending,
		Items:           lines,
		ShippingName:    input.Shipping.Name,
		ShippingStreet:  input.Shipping.Street,
		ShippingCity:    input.Shipping.City,
		ShippingZip:     input.Shipping.Zip,
		ShippingCountry: input.Shipping.Country,
		PaymentMethod:   input.PaymentMethod,
		CouponCode:      couponCode,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		Tax:             tax,
		Discount:        discount,
		Total:           total,
		CreatedAt:       now,
		UpdatedAt:       now,
		History: []*entity.StatusHistoryEntry{
			{Status: entity.StatusPending, Note: "order created", CreatedAt: now},
		},
	}

	if err := s.store.Create(ctx, order); err != nil {
		s.releaseAll(ctx, input.Items)
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}

	if couponCode != "" {
		if ok, err := s.coupons.ConsumeUse(ctx, couponCode); err != nil || !ok {
			// The discount has already been granted; losing the count is
			// recoverable, losing the order is not.
			s.logger.Warn("coupon use not recorded", zap.String("code", couponCode), zap.Error(err))
		}
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", order.ID), zap.Error(err))
	}
	s.publishEvent(ctx, eventOrderPlaced, order, "")

	return order, nil
}

func (s *Service) shippingFee(subtotal int64) int64 {
	if subtotal >= s.checkout.FreeShippingThreshold {
		return 0
	}
	return s.checkout.FlatShippingFee
}

// resolveDiscount validates an explicitly claimed coupon code. A failing
// claimed code is a hard error; an empty code yields no discount.
func (s *Service) resolveDiscount(ctx context.Context, code string, subtotal int64) (int64, string, error) {
	if code == "" {
		return 0, "", nil
	}
	coupon, err := s.coupons.GetByCode(ctx, code)
	if errors.Is(err, couponrepo.ErrNotFound) {
		return 0, "", ErrCouponInvalid
	}
	if err != nil {
		return 0, "", errorbank.Internal("failed to look up coupon", errorbank.WithCause(err))
	}
	if !coupon.Usable(subtotal, s.now()) {
		return 0, "", ErrCouponInvalid
	}
	return coupon.DiscountFor(subtotal), coupon.Code, nil
}

// reserveAll takes one conditional decrement per item. On the first failed
// reservation every earlier one is re-incremented, so a multi-item order
// never holds stock for items it will not persist.
func (s *Service) reserveAll(ctx context.Context, items []CreateItem, products map[int64]*entity.Product) error {
	for i, item := range items {
		ok, err := s.catalog.ReserveStock(ctx, item.ProductID, item.Quantity)
		if err == nil && ok {
			continue
		}
		s.releaseAll(ctx, items[:i])
		if err != nil {
			return errorbank.Internal("stock reservation failed", errorbank.WithCause(err))
		}
		return &InsufficientStockError{
			ProductID: item.ProductID,
			Name:      products[item.ProductID].Name,
			Requested: item.Quantity,
		}
	}
	return nil
}

func (s *Service) releaseAll(ctx context.Context, items []CreateItem) {
	for _, item := range items {
		if err := s.catalog.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("compensating stock release failed",
				zap.Int64("product_id", item.ProductID),
				zap.Int("qty", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

// Get retrieves an order by id, consulting cache when available.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	if order, err := s.getFromCache(ctx, id); err == nil {
		return order, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if err := s.storeInCache(ctx, order); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", id), zap.Error(err))
	}

	return order, nil
}

// FindByPaymentRef locates an order by its provisional or durable payment
// reference. Used by the reconciler; misses are reported as ErrNotFound
// from the repository so the caller can decide the no-op policy.
func (s *Service) FindByPaymentRef(ctx context.Context, ref string) (*entity.Order, error) {
	return s.store.GetByPaymentRef(ctx, ref)
}

// UpdateStatus is the admin transition path. The requested change is
// validated against the legal-transition table, then applied with the same
// conditional guard as every other writer, so a concurrent webhook cannot
// be overwritten.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to entity.Status, note, trackingNumber string) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status.to", to.String()),
	))
	defer span.End()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return nil, errorbank.NotFound("order not found")
		}
		return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}

	if !entity.CanTransition(order.Status, to) {
		return nil, &StaleTransitionError{Current: order.Status, Requested: to}
	}

	applied, err := s.Transition(ctx, orderID, entity.StatusChange{
		From:           order.Status,
		To:             to,
		Note:           note,
		TrackingNumber: trackingNumber,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, errorbank.Internal("failed to update status", errorbank.WithCause(err))
	}
	if !applied {
		// The order moved between the read and the guarded write.
		current, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			return nil, errorbank.Internal("failed to reload order", errorbank.WithCause(err))
		}
		return nil, &StaleTransitionError{Current: current.Status, Requested: to}
	}

	return s.store.GetByID(ctx, orderID)
}

// Transition applies one guarded status change, invalidates the cache and
// publishes the status event when the guard held. This is the single
// boundary through which every status mutation flows.
func (s *Service) Transition(ctx context.Context, orderID int64, change entity.StatusChange) (bool, error) {
	applied, err := s.store.ApplyTransition(ctx, orderID, change)
	if err != nil || !applied {
		return applied, err
	}
	s.invalidateCache(ctx, orderID)
	if order, err := s.store.GetByID(ctx, orderID); err == nil {
		s.publishEvent(ctx, eventOrderStatusChanged, order, change.From.String())
	}
	return true, nil
}

// AttachPaymentRef records the provisional checkout session id on a pending
// order.
func (s *Service) AttachPaymentRef(ctx context.Context, orderID int64, ref string) (bool, error) {
	ok, err := s.store.SetPaymentRef(ctx, orderID, ref)
	if err != nil || !ok {
		return ok, err
	}
	s.invalidateCache(ctx, orderID)
	return true, nil
}

// CancelStalePending cancels pending orders older than the configured
// payment window. Each cancellation uses the pending guard, so a success
// event that lands mid-sweep wins and that order is skipped.
func (s *Service) CancelStalePending(ctx context.Context) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.CancelStalePending")
	defer span.End()

	cutoff := s.now().Add(-s.checkout.PendingWindow)
	ids, err := s.store.ListStalePending(ctx, cutoff, 100)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return 0, err
	}

	cancelled := 0
	for _, id := range ids {
		applied, err := s.Transition(ctx, id, entity.StatusChange{
			From: entity.StatusPending,
			To:   entity.StatusCancelled,
			Note: "payment window expired",
		})
		if err != nil {
			s.logger.Error("stale order cancel failed", zap.Int64("id", id), zap.Error(err))
			continue
		}
		if applied {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *Service) cacheKey(id int64) string {
	return fmt.Sprintf("orders:%d", id)
}

func (s *Service) getFromCache(ctx context.Context, id int64) (*entity.Order, error) {
	if s.cache == nil {
		return nil, cache.ErrCacheMiss
	}
	bytes, err := s.cache.Get(ctx, s.cacheKey(id))
	if err != nil {
		return nil, err
	}
	var order entity.Order
	if err := json.Unmarshal(bytes, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) error {
	if s.cache == nil || order == nil {
		return nil
	}
	bytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.cacheKey(order.ID), bytes, s.cacheTTL)
}

func (s *Service) invalidateCache(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cacheKey(id)); err != nil {
		s.logger.Warn("orders cache delete failed", zap.Int64("id", id), zap.Error(err))
	}
}

const (
	eventOrderPlaced        = "order.placed"
	eventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is emitted on the message bus when an order is created or
// changes status.
type OrderEvent struct {
	Kind       string    `json:"kind"`
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	Status     string    `json:"status"`
	PrevStatus string    `json:"prev_status,omitempty"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *Service) publishEvent(ctx context.Context, kind string, order *entity.Order, prev string) {
	if !s.messaging.enabled || s.publisher == nil {
		return
	}
	event := OrderEvent{
		Kind:       kind,
		ID:         order.ID,
		Number:     order.Number,
		Status:     order.Status.String(),
		PrevStatus: prev,
		Total:      order.Total,
		OccurredAt: s.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal order event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("order-%d", order.ID)), payload); err != nil {
		s.logger.Error("publish order event", zap.String("kind", kind), zap.Error(err))
	}
}
