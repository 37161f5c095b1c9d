package dto

import "time"

// OrderResponse represents an order as exposed via transport layers.
// Monetary fields are decimal strings; minor units never leave the service.
type OrderResponse struct {
	ID             int64                  `json:"id"`
	Number         string                 `json:"number"`
	Status         string                 `json:"status"`
	Items          []OrderItemResponse    `json:"items,omitempty"`
	History        []StatusHistoryEntry   `json:"history,omitempty"`
	Shipping       OrderShippingResponse  `json:"shipping"`
	PaymentMethod  string                 `json:"payment_method"`
	CouponCode     string                 `json:"coupon_code,omitempty"`
	Subtotal       string                 `json:"subtotal"`
	ShippingFee    string                 `json:"shipping_fee"`
	Tax            string                 `json:"tax"`
	Discount       string                 `json:"discount"`
	Total          string                 `json:"total"`
	TrackingNumber string                 `json:"tracking_number,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// OrderItemResponse is one snapshotted line item.
type OrderItemResponse struct {
	ProductID   int64  `json:"product_id"`
	ProductType string `json:"product_type"`
	Name        string `json:"name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// StatusHistoryEntry is one entry of the append-only status timeline.
type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderShippingResponse is the shipping destination block.
type OrderShippingResponse struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}
