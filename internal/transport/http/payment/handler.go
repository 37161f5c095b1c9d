package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/dto"
	"github.com/mustafamuhammed29/handyland-sub001/internal/presentation/http/response"
	service "github.com/mustafamuhammed29/handyland-sub001/internal/service/payment"
	"github.com/mustafamuhammed29/handyland-sub001/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/transport/http/payment")

// Handler exposes the checkout session and webhook endpoints.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a payment Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/checkout/session", h.createSession)
	e.POST("/webhooks/payment", h.webhook)
}

type createSessionPayload struct {
	OrderID int64 `json:"order_id"`
}

func (h *Handler) createSession(c echo.Context) error {
	b := response.New(c)

	var payload createSessionPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if payload.OrderID <= 0 {
		return b.WithError(errorbank.BadRequest("order_id is required")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.createSession", trace.WithAttributes(
		attribute.Int64("order.id", payload.OrderID),
	))
	defer span.End()

	session, err := h.svc.CreateSession(ctx, payload.OrderID)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.CheckoutSessionResponse{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
	}).Build()
}

// webhook reads the raw body so the signature is verified over the exact
// bytes the provider signed, before any parsing happens.
func (h *Handler) webhook(c echo.Context) error {
	b := response.New(c)

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return b.WithError(errorbank.BadRequest("unreadable payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "payments.webhook")
	defer span.End()

	if err := h.svc.HandleWebhook(ctx, payload, c.Request().Header.Get(service.SignatureHeader)); err != nil {
		if errors.Is(err, service.ErrBadSignature) {
			return b.WithError(errorbank.Unauthorized("invalid webhook signature")).Build()
		}
		return b.WithError(err).Build()
	}

	return b.WithData(map[string]string{"received": "true"}).Build()
}
