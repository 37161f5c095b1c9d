package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Order represents a purchase order stored in the relational database.
// All monetary fields are integer minor units (cents).
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID     int64  `bun:",pk,autoincrement"`
	Number string `bun:"number"`
	UserID int64  `bun:"user_id"`
	Status Status `bun:"status"`

	Items   []*OrderItem          `bun:"rel:has-many,join:id=order_id"`
	History []*StatusHistoryEntry `bun:"rel:has-many,join:id=order_id"`

	ShippingName    string `bun:"shipping_name"`
	ShippingStreet  string `bun:"shipping_street"`
	ShippingCity    string `bun:"shipping_city"`
	ShippingZip     string `bun:"shipping_zip"`
	ShippingCountry string `bun:"shipping_country"`

	PaymentMethod string `bun:"payment_method"`
	CouponCode    string `bun:"coupon_code,nullzero"`

	Subtotal    int64 `bun:"subtotal"`
	ShippingFee int64 `bun:"shipping_fee"`
	Tax         int64 `bun:"tax"`
	Discount    int64 `bun:"discount"`
	Total       int64 `bun:"total"`

	// PaymentRef holds the provisional checkout session id until the
	// provider confirms payment, then the durable payment intent id.
	PaymentRef     string `bun:"payment_ref,nullzero"`
	TrackingNumber string `bun:"tracking_number,nullzero"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}

// OrderItem is a line item snapshotted at creation time. UnitPrice is
// immutable once the order is persisted.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID          int64  `bun:",pk,autoincrement"`
	OrderID     int64  `bun:"order_id"`
	ProductID   int64  `bun:"product_id"`
	ProductType string `bun:"product_type"`
	Name        string `bun:"name"`
	UnitPrice   int64  `bun:"unit_price"`
	Quantity    int    `bun:"quantity"`
}

// StatusHistoryEntry records one status transition. Rows are append-only;
// the newest entry always mirrors Order.Status.
type StatusHistoryEntry struct {
	bun.BaseModel `bun:"table:order_status_history"`

	ID        int64     `bun:",pk,autoincrement"`
	OrderID   int64     `bun:"order_id"`
	Status    Status    `bun:"status"`
	Note      string    `bun:"note,nullzero"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
