package catalog

import (
	"context"
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

var repoTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/repository/catalog")

// ErrNotFound is returned when a product is missing.
var ErrNotFound = errors.New("product not found")

// Repository exposes catalog reads and atomic stock movements.
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

// ProductsByIDs loads the referenced products keyed by id. Missing ids are
// simply absent from the map; the caller decides whether that is an error.
func (r *Repository) ProductsByIDs(ctx context.Context, ids []int64) (map[int64]*entity.Product, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ProductsByIDs", trace.WithAttributes(attribute.Int("product.count", len(ids))))
	defer span.End()

	if len(ids) == 0 {
		return map[int64]*entity.Product{}, nil
	}

	var products []*entity.Product
	err := r.reader.NewSelect().Model(&products).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	byID := make(map[int64]*entity.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

// ReserveStock decrements stock for one product only while enough remains.
// The conditional update is a single statement, so concurrent reservations
// can never drive stock negative. It reports false when the product had
// insufficient stock.
func (r *Repository) ReserveStock(ctx context.Context, productID int64, qty int) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ReserveStock", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("product.qty", qty),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Product)(nil)).
		Set("stock = stock - ?", qty).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", productID).
		Where("stock >= ?", qty).
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

// ReleaseStock re-increments stock, compensating a reservation that will
// not be persisted.
func (r *Repository) ReleaseStock(ctx context.Context, productID int64, qty int) error {
	ctx, span := repoTracer.Start(ctx, "CatalogRepository.ReleaseStock", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("product.qty", qty),
	))
	defer span.End()

	_, err := r.writer.NewUpdate().Model((*entity.Product)(nil)).
		Set("stock = stock + ?", qty).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", productID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
	}
	return err
}
