package payment

import (
	"context"
	"errors"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	"github.com/mustafamuhammed29/handyland-sub001/internal/repository/ledger"
	"github.com/mustafamuhammed29/handyland-sub001/pkg/errorbank"
)

// HandleWebhook verifies, decodes and applies one provider notification.
// The feed is at-least-once and unordered, so every handler is idempotent:
// replays and stale events resolve to acknowledged no-ops, and every
// state-changing write is guarded on the order's expected current status.
//
// Transient store failures are retried a bounded number of times; on
// exhaustion the event is surfaced with an error so the provider redelivers
// and the failure is visible for manual reconciliation.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := serviceTracer.Start(ctx, "PaymentService.HandleWebhook")
	defer span.End()

	if err := VerifySignature(s.cfg.WebhookSecret, signatureHeader, payload, s.now(), s.cfg.SignatureSkew); err != nil {
		span.SetStatus(codes.Error, "bad signature")
		return err
	}

	event, err := DecodeEvent(payload)
	if err != nil {
		span.RecordError(err)
		return errorbank.BadRequest("malformed webhook payload", errorbank.WithCause(err))
	}

	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxAttempts-1), retry.NewExponential(s.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.apply(ctx, event); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retries exhausted")
		s.logger.Error("payment event failed after retries, manual reconciliation required",
			zap.String("event_id", event.ExternalID()),
			zap.Error(err),
		)
		return errorbank.Internal("failed to process payment event", errorbank.WithCause(err))
	}
	return nil
}

func (s *Service) apply(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case *CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, ev)
	case *PaymentFailed:
		return s.applyPaymentFailed(ctx, ev)
	case *ChargeRefunded:
		return s.applyChargeRefunded(ctx, ev)
	case *UnknownEvent:
		s.logger.Debug("ignoring unhandled payment event kind",
			zap.String("event_id", ev.ExternalID()),
			zap.String("kind", ev.Kind),
		)
		return nil
	default:
		return nil
	}
}

// applyCheckoutCompleted moves a pending order to processing, swaps the
// provisional session reference for the durable payment intent id and
// records the purchase in the ledger. The intent id is also consulted on
// lookup so a retry after a partial failure still finds the order.
func (s *Service) applyCheckoutCompleted(ctx context.Context, ev *CheckoutCompleted) error {
	order, err := s.findOrder(ctx, ev.SessionID, ev.PaymentIntentID)
	if err != nil {
		return err
	}
	if order == nil {
		s.logger.Warn("checkout completed for unknown order, acknowledging",
			zap.String("event_id", ev.ExternalID()),
			zap.String("session_id", ev.SessionID),
		)
		return nil
	}

	applied, err := s.orders.Transition(ctx, order.ID, entity.StatusChange{
		From:       entity.StatusPending,
		To:         entity.StatusProcessing,
		Note:       "payment captured",
		PaymentRef: ev.PaymentIntentID,
	})
	if err != nil {
		return err
	}
	if !applied && order.Status != entity.StatusProcessing {
		// Resolved past processing (shipped, refunded, ...); a stale
		// completion event must not regress it.
		s.logger.Info("checkout completed replay on resolved order",
			zap.String("event_id", ev.ExternalID()),
			zap.String("order_number", order.Number),
			zap.String("status", order.Status.String()),
		)
		return nil
	}

	// Exactly one purchase row per order, even across replays and retries.
	if _, err := s.ledger.PurchaseAmount(ctx, order.ID); err == nil {
		return nil
	} else if !errors.Is(err, ledger.ErrNoPurchase) {
		return err
	}
	return s.appendLedger(ctx, order, entity.TransactionTypePurchase, ev.AmountTotal, ev.PaymentIntentID)
}

// applyPaymentFailed cancels an order that is still pending. Orders already
// resolved by a success event or the sweep are left untouched.
func (s *Service) applyPaymentFailed(ctx context.Context, ev *PaymentFailed) error {
	order, err := s.findOrder(ctx, ev.PaymentIntentID)
	if err != nil {
		return err
	}
	if order == nil {
		s.logger.Warn("payment failed for unknown order, acknowledging",
			zap.String("event_id", ev.ExternalID()),
		)
		return nil
	}

	applied, err := s.orders.Transition(ctx, order.ID, entity.StatusChange{
		From: entity.StatusPending,
		To:   entity.StatusCancelled,
		Note: "payment failed",
	})
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("payment failed event on resolved order",
			zap.String("event_id", ev.ExternalID()),
			zap.String("order_number", order.Number),
		)
	}
	return nil
}

// applyChargeRefunded transitions the order to refunded and appends a
// refund row negating the original purchase amount. A refund row already on
// the ledger marks the event as a replay.
func (s *Service) applyChargeRefunded(ctx context.Context, ev *ChargeRefunded) error {
	order, err := s.findOrder(ctx, ev.PaymentIntentID)
	if err != nil {
		return err
	}
	if order == nil {
		s.logger.Warn("charge refunded for unknown order, acknowledging",
			zap.String("event_id", ev.ExternalID()),
		)
		return nil
	}

	refunded, err := s.ledger.HasRefund(ctx, order.ID)
	if err != nil {
		return err
	}
	if refunded {
		return nil
	}

	purchase, err := s.ledger.PurchaseAmount(ctx, order.ID)
	if errors.Is(err, ledger.ErrNoPurchase) {
		s.logger.Error("refund event for order with no recorded purchase",
			zap.String("event_id", ev.ExternalID()),
			zap.String("order_number", order.Number),
		)
		return err
	}
	if err != nil {
		return err
	}

	applied := false
	for _, from := range []entity.Status{entity.StatusProcessing, entity.StatusDelivered} {
		ok, err := s.orders.Transition(ctx, order.ID, entity.StatusChange{
			From: from,
			To:   entity.StatusRefunded,
			Note: "charge refunded",
		})
		if err != nil {
			return err
		}
		if ok {
			applied = true
			break
		}
	}
	if !applied && order.Status != entity.StatusRefunded {
		s.logger.Warn("refund event for order in unexpected state, acknowledging",
			zap.String("event_id", ev.ExternalID()),
			zap.String("order_number", order.Number),
			zap.String("status", order.Status.String()),
		)
		return nil
	}

	return s.appendLedger(ctx, order, entity.TransactionTypeRefund, -purchase, ev.PaymentIntentID)
}
