// Package notify consumes order lifecycle events from the message bus and
// hands them to the notification sink. Delivery itself is an external
// collaborator; this worker only decides who gets told what.
package notify

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/messaging"
	ordersvc "github.com/mustafamuhammed29/handyland-sub001/internal/service/order"
	"github.com/mustafamuhammed29/handyland-sub001/internal/worker"
)

var workerTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/worker/notify")

// Module registers the order event notification handler.
var Module = fx.Module("worker_notify",
	fx.Provide(
		fx.Annotate(
			NewOrderEventsHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderEventsHandler sets up a worker handler that fans order lifecycle
// events out to notifications.
func NewOrderEventsHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.notify.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event ordersvc.OrderEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order event", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		// Fire-and-forget sink for now; customers get mailed by the
		// notification collaborator, we only log the decision here.
		logger.Info("order notification dispatched",
			zap.String("kind", event.Kind),
			zap.String("number", event.Number),
			zap.String("status", event.Status),
			zap.String("prev_status", event.PrevStatus),
		)

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
