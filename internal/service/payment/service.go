// Package payment owns the provider boundary: creating hosted checkout
// sessions and reconciling the asynchronous, at-least-once webhook feed
// onto order and ledger state exactly once in business effect.
package payment

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	orderrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
	"github.com/mustafamuhammed29/handyland-sub001/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/service/payment")

// Orders is the slice of the order service the payment flow needs: loads,
// payment-reference lookups and guarded transitions.
type Orders interface {
	Get(ctx context.Context, id int64) (*entity.Order, error)
	FindByPaymentRef(ctx context.Context, ref string) (*entity.Order, error)
	Transition(ctx context.Context, orderID int64, change entity.StatusChange) (bool, error)
	AttachPaymentRef(ctx context.Context, orderID int64, ref string) (bool, error)
}

// Ledger is the append-only transaction record.
type Ledger interface {
	Append(ctx context.Context, tx *entity.Transaction) error
	HasRefund(ctx context.Context, orderID int64) (bool, error)
	PurchaseAmount(ctx context.Context, orderID int64) (int64, error)
}

// Service creates checkout sessions and reconciles provider events.
type Service struct {
	orders   Orders
	ledger   Ledger
	provider Provider
	cfg      config.Payment
	currency string
	logger   *zap.Logger
	now      func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders   Orders
	Ledger   Ledger
	Provider Provider
	Config   config.Config
	Logger   *zap.Logger
}

// NewService wires a new payment Service.
func NewService(p Params) *Service {
	return &Service{
		orders:   p.Orders,
		ledger:   p.Ledger,
		provider: p.Provider,
		cfg:      p.Config.Payment,
		currency: p.Config.Checkout.Currency,
		logger:   p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession opens a hosted checkout session for a pending order and
// stores the provisional session id as the order's payment reference.
func (s *Service) CreateSession(ctx context.Context, orderID int64) (Session, error) {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.CreateSession", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Session{}, err
	}
	if order.Status != entity.StatusPending {
		return Session{}, errorbank.Conflict("order is not awaiting payment",
			errorbank.WithDetail("status", order.Status.String()))
	}

	session, err := s.provider.CreateCheckoutSession(ctx, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider error")
		return Session{}, errorbank.Internal("failed to create checkout session", errorbank.WithCause(err))
	}

	attached, err := s.orders.AttachPaymentRef(ctx, order.ID, session.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return Session{}, errorbank.Internal("failed to store session reference", errorbank.WithCause(err))
	}
	if !attached {
		// The order left pending between the read and the write.
		return Session{}, errorbank.Conflict("order is not awaiting payment")
	}

	return session, nil
}

func (s *Service) appendLedger(ctx context.Context, order *entity.Order, txType string, amount int64, externalRef string) error {
	return s.ledger.Append(ctx, &entity.Transaction{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        amount,
		Currency:      s.currency,
		Type:          txType,
		Status:        entity.TransactionStatusCompleted,
		PaymentMethod: order.PaymentMethod,
		ExternalRef:   externalRef,
		CreatedAt:     s.now(),
	})
}

// findOrder resolves an order by payment reference, translating a missing
// order into (nil, nil) so callers can acknowledge it as a no-op.
func (s *Service) findOrder(ctx context.Context, refs ...string) (*entity.Order, error) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		order, err := s.orders.FindByPaymentRef(ctx, ref)
		if errors.Is(err, orderrepo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
	return nil, nil
}
