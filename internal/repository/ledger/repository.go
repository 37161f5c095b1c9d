// Package ledger is the append-only financial record. Rows are inserted and
// read, never updated or deleted; corrections are compensating entries.
package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

var repoTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/repository/ledger")

// ErrNoPurchase is returned when an order has no completed purchase entry.
var ErrNoPurchase = errors.New("no purchase transaction for order")

// Repository appends and reads ledger rows.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Append inserts a ledger row. This is the only write operation the package
// offers.
func (r *Repository) Append(ctx context.Context, tx *entity.Transaction) error {
	if tx == nil {
		return errors.New("nil transaction")
	}
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.Append", trace.WithAttributes(
		attribute.Int64("order.id", tx.OrderID),
		attribute.String("transaction.type", tx.Type),
	))
	defer span.End()

	_, err := r.writer.NewInsert().Model(tx).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// ListByOrder returns all ledger rows for an order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]*entity.Transaction, error) {
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.ListByOrder", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var txs []*entity.Transaction
	err := r.reader.NewSelect().Model(&txs).
		Where("order_id = ?", orderID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return txs, nil
}

// HasRefund reports whether a refund row already exists for the order. The
// reconciler uses this to collapse replayed refund events. Reads go to the
// writer so a just-committed refund is always visible.
func (r *Repository) HasRefund(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.HasRefund", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	count, err := r.writer.NewSelect().Model((*entity.Transaction)(nil)).
		Where("order_id = ?", orderID).
		Where("type = ?", entity.TransactionTypeRefund).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return false, err
	}
	return count > 0, nil
}

// PurchaseAmount returns the amount of the original completed purchase row
// for the order. Refund magnitudes are derived from it, never from the
// provider payload.
func (r *Repository) PurchaseAmount(ctx context.Context, orderID int64) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "LedgerRepository.PurchaseAmount", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	var amount int64
	err := r.writer.NewSelect().Model((*entity.Transaction)(nil)).
		Column("amount").
		Where("order_id = ?", orderID).
		Where("type = ?", entity.TransactionTypePurchase).
		Where("status = ?", entity.TransactionStatusCompleted).
		Order("id ASC").
		Limit(1).
		Scan(ctx, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "no purchase")
		return 0, ErrNoPurchase
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return 0, err
	}
	return amount, nil
}
