package coupon

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

var repoTracer = otel.Tracer("github.com/mustafamuhammed29/handyland-sub001/repository/coupon")

// ErrNotFound is returned when a coupon code does not exist.
var ErrNotFound = errors.New("coupon not found")

// Repository looks up and consumes coupon codes.
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

// GetByCode fetches a coupon by its (case-insensitive) code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*entity.Coupon, error) {
	ctx, span := repoTracer.Start(ctx, "CouponRepository.GetByCode", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	coupon := new(entity.Coupon)
	err := r.reader.NewSelect().Model(coupon).
		Where("upper(code) = ?", strings.ToUpper(code)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return coupon, nil
}

// ConsumeUse atomically counts one redemption, bounded by the usage cap. It
// reports false when the cap was already reached, which the caller treats
// as the coupon no longer being applicable.
func (r *Repository) ConsumeUse(ctx context.Context, code string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "CouponRepository.ConsumeUse", trace.WithAttributes(attribute.String("coupon.code", code)))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Coupon)(nil)).
		Set("used_count = used_count + 1").
		Where("upper(code) = ?", strings.ToUpper(code)).
		Where("active").
		Where("max_uses = 0 OR used_count < max_uses").
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
