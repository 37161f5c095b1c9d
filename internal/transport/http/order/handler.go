package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/dto"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
	"github.com/mustafamuhammed29/handyland-sub001/internal/money"
	"github.com/mustafamuhammed29/handyland-sub001/internal/presentation/http/response"
	service "github.com/mustafamuhammed29/handyland-sub001/internal/service/order"
	"github.com/mustafamuhammed29/handyland-sub001/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/transport/http/order")

// Handler exposes order endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo group.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/orders")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.PATCH("/:id/status", h.updateStatus)
}

type createItemPayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createPayload struct {
	UserID        int64               `json:"user_id"`
	Items         []createItemPayload `json:"items"`
	Shipping      shippingPayload     `json:"shipping"`
	PaymentMethod string              `json:"payment_method"`
	CouponCode    string              `json:"coupon_code"`
	Total         string              `json:"total"`
}

type shippingPayload struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload createPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	input := service.CreateInput{
		UserID:        payload.UserID,
		PaymentMethod: payload.PaymentMethod,
		CouponCode:    payload.CouponCode,
		Shipping: service.Address{
			Name:    payload.Shipping.Name,
			Street:  payload.Shipping.Street,
			City:    payload.Shipping.City,
			Zip:     payload.Shipping.Zip,
			Country: payload.Shipping.Country,
		},
	}
	for _, item := range payload.Items {
		input.Items = append(input.Items, service.CreateItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if payload.Total != "" {
		minor, err := money.Parse(payload.Total)
		if err != nil {
			return b.WithError(errorbank.BadRequest("invalid total", errorbank.WithCause(err))).Build()
		}
		input.ClientTotal = &minor
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.Int("order.items", len(input.Items)),
	))
	defer span.End()

	order, err := h.svc.Create(ctx, input)
	if err != nil {
		return b.WithError(mapDomainError(err)).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(toDTO(order)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

type updateStatusPayload struct {
	Status         string `json:"status"`
	Note           string `json:"note"`
	TrackingNumber string `json:"tracking_number"`
}

func (h *Handler) updateStatus(c echo.Context) error {
	b := response.New(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return b.WithError(errorbank.BadRequest("invalid id", errorbank.WithCause(err))).Build()
	}

	var payload updateStatusPayload
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	status, ok := entity.ParseStatus(payload.Status)
	if !ok {
		return b.WithError(errorbank.BadRequest("unknown status", errorbank.WithDetail("status", payload.Status))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.updateStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.to", payload.Status),
	))
	defer span.End()

	order, err := h.svc.UpdateStatus(ctx, id, status, payload.Note, payload.TrackingNumber)
	if err != nil {
		return b.WithError(mapDomainError(err)).Build()
	}

	return b.WithData(toDTO(order)).Build()
}

// mapDomainError translates typed domain failures into transport errors,
// keeping their reconciliation details.
func mapDomainError(err error) error {
	var stock *service.InsufficientStockError
	if errors.As(err, &stock) {
		return errorbank.Conflict("insufficient stock",
			errorbank.WithDetail("product_id", stock.ProductID),
			errorbank.WithDetail("product_name", stock.Name),
			errorbank.WithDetail("requested", stock.Requested),
		)
	}
	var integrity *service.IntegrityError
	if errors.As(err, &integrity) {
		return errorbank.Unprocessable("order total mismatch",
			errorbank.WithDetail("computed_total", money.Format(integrity.Computed)),
		)
	}
	var stale *service.StaleTransitionError
	if errors.As(err, &stale) {
		return errorbank.Conflict("illegal status transition",
			errorbank.WithDetail("current_status", stale.Current.String()),
			errorbank.WithDetail("requested_status", stale.Requested.String()),
		)
	}
	if errors.Is(err, service.ErrCouponInvalid) {
		return errorbank.BadRequest("coupon is not applicable")
	}
	return err
}

func toDTO(order *entity.Order) dto.OrderResponse {
	resp := dto.OrderResponse{
		ID:     order.ID,
		Number: order.Number,
		Status: order.Status.String(),
		Shipping: dto.OrderShippingResponse{
			Name:    order.ShippingName,
			Street:  order.ShippingStreet,
			City:    order.ShippingCity,
			Zip:     order.ShippingZip,
			Country: order.ShippingCountry,
		},
		PaymentMethod:  order.PaymentMethod,
		CouponCode:     order.CouponCode,
		Subtotal:       money.Format(order.Subtotal),
		ShippingFee:    money.Format(order.ShippingFee),
		Tax:            money.Format(order.Tax),
		Discount:       money.Format(order.Discount),
		Total:          money.Format(order.Total),
		TrackingNumber: order.TrackingNumber,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, dto.OrderItemResponse{
			ProductID:   item.ProductID,
			ProductType: item.ProductType,
			Name:        item.Name,
			UnitPrice:   money.Format(item.UnitPrice),
			Quantity:    item.Quantity,
		})
	}
	for _, h := range order.History {
		resp.History = append(resp.History, dto.StatusHistoryEntry{
			Status:    h.Status.String(),
			Note:      h.Note,
			CreatedAt: h.CreatedAt,
		})
	}
	return resp
}
