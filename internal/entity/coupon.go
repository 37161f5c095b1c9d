package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Coupon discount kinds.
const (
	CouponTypeFixed   = "fixed"
	CouponTypePercent = "percent"
)

// Coupon is a discount code looked up at order creation. Amount is minor
// units for fixed coupons and whole percent for percent coupons; MinOrder
// is the minimum qualifying subtotal in minor units.
type Coupon struct {
	bun.BaseModel `bun:"table:coupons"`

	ID        int64      `bun:",pk,autoincrement"`
	Code      string     `bun:"code"`
	Type      string     `bun:"type"`
	Amount    int64      `bun:"amount"`
	MinOrder  int64      `bun:"min_order"`
	MaxUses   int        `bun:"max_uses"`
	UsedCount int        `bun:"used_count"`
	Active    bool       `bun:"active"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}

// Usable reports whether the coupon may be applied to the given subtotal at
// the given instant.
func (c *Coupon) Usable(subtotal int64, now time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return false
	}
	return subtotal >= c.MinOrder
}

// DiscountFor computes the discount in minor units for a subtotal. The
// discount never exceeds the subtotal.
func (c *Coupon) DiscountFor(subtotal int64) int64 {
	var discount int64
	switch c.Type {
	case CouponTypePercent:
		discount = subtotal * c.Amount / 100
	default:
		discount = c.Amount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
