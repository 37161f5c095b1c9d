package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

var repoTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/repository/order")

// ErrNotFound is returned when an order is missing.
var ErrNotFound = errors.New("order not found")

// Repository encapsulates read/write access for orders.
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

// Create persists an order, its line items and the initial history entry in
// one transaction.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		for _, item := range order.Items {
			item.OrderID = order.ID
		}
		if len(order.Items) > 0 {
			if _, err := tx.NewInsert().Model(&order.Items).Exec(ctx); err != nil {
				return err
			}
		}
		for _, h := range order.History {
			h.OrderID = order.ID
		}
		if len(order.History) > 0 {
			if _, err := tx.NewInsert().Model(&order.History).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// GetByID fetches an order with items and history using the read replica
// when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Relation("History", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("created_at ASC", "id ASC")
		}).
		Where("id = ?", id).
		Scan(ctx)
	return returned(span, order, err)
}

// GetByNumber fetches an order by its human-readable number.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByNumber", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).
		Relation("Items").
		Where("number = ?", number).
		Scan(ctx)
	return returned(span, order, err)
}

// GetByPaymentRef locates the order holding a checkout session id or a
// durable payment intent id. Webhook lookups must see the latest state, so
// this reads from the writer.
func (r *Repository) GetByPaymentRef(ctx context.Context, ref string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByPaymentRef")
	defer span.End()

	order := new(entity.Order)
	err := r.writer.NewSelect().Model(order).
		Where("payment_ref = ?", ref).
		Scan(ctx)
	return returned(span, order, err)
}

// ApplyTransition performs one guarded status change: the update only lands
// while the order still holds change.From, and the matching history row is
// appended in the same transaction. It reports false when the guard missed,
// which callers treat as a stale or duplicate request.
func (r *Repository) ApplyTransition(ctx context.Context, orderID int64, change entity.StatusChange) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ApplyTransition", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("order.status.from", change.From.String()),
		attribute.String("order.status.to", change.To.String()),
	))
	defer span.End()

	applied := false
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		q := tx.NewUpdate().Model((*entity.Order)(nil)).
			Set("status = ?", change.To).
			Set("updated_at = ?", now).
			Where("id = ?", orderID).
			Where("status = ?", change.From)
		if change.PaymentRef != "" {
			q = q.Set("payment_ref = ?", change.PaymentRef)
		}
		if change.TrackingNumber != "" {
			q = q.Set("tracking_number = ?", change.TrackingNumber)
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		entry := &entity.StatusHistoryEntry{
			OrderID:   orderID,
			Status:    change.To,
			Note:      change.Note,
			CreatedAt: now,
		}
		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return false, err
	}
	return applied, nil
}

// SetPaymentRef stores the provisional checkout session id on a pending
// order. Like every other write it is guarded on the current status.
func (r *Repository) SetPaymentRef(ctx context.Context, orderID int64, ref string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.SetPaymentRef", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("payment_ref = ?", ref).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("status = ?", entity.StatusPending).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListStalePending returns ids of pending orders created before the cutoff.
// The sweep transitions each one through ApplyTransition so a late success
// event cannot race the cancellation.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListStalePending")
	defer span.End()

	var ids []int64
	q := r.writer.NewSelect().Model((*entity.Order)(nil)).
		Column("id").
		Where("status = ?", entity.StatusPending).
		Where("created_at < ?", cutoff).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return ids, nil
}

func returned(span trace.Span, order *entity.Order, err error) (*entity.Order, error) {
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}
