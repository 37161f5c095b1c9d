package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Transaction kinds. Refunds carry negative amounts; everything else is
// positive.
const (
	TransactionTypePurchase = "purchase"
	TransactionTypeRefund   = "refund"
	TransactionTypeCredit   = "credit"
	TransactionTypeDebit    = "debit"
)

// Transaction processing states.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is an append-only ledger row. Rows are never updated or
// deleted; corrections are new compensating entries.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID            int64     `bun:",pk,autoincrement"`
	OrderID       int64     `bun:"order_id"`
	UserID        int64     `bun:"user_id"`
	Amount        int64     `bun:"amount"`
	Currency      string    `bun:"currency"`
	Type          string    `bun:"type"`
	Status        string    `bun:"status"`
	PaymentMethod string    `bun:"payment_method"`
	ExternalRef   string    `bun:"external_ref,nullzero"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
