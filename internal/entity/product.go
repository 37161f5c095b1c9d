package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Product type tags carried onto order items at snapshot time.
const (
	ProductTypeDevice    = "device"
	ProductTypeAccessory = "accessory"
)

// Product is a sellable catalog entry. Price is integer minor units; Stock
// is only ever changed through conditional decrements and compensating
// increments, never read-modify-write.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID        int64     `bun:",pk,autoincrement"`
	Name      string    `bun:"name"`
	Type      string    `bun:"type"`
	Price     int64     `bun:"price"`
	Stock     int       `bun:"stock"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
