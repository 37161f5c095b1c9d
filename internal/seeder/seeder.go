package seeder

import (
	"context"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/entity"
)

// Module provides the seeder to the Fx graph.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Run seeds the catalog and coupons if they are missing.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.products(ctx); err != nil {
		return err
	}
	return s.coupons(ctx)
}

func (s *Seeder) products(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []entity.Product{
		{Name: "Refurbished phone screen", Type: entity.ProductTypeDevice, Price: 5000, Stock: 40, CreatedAt: now, UpdatedAt: now},
		{Name: "Replacement battery", Type: entity.ProductTypeDevice, Price: 2000, Stock: 60, CreatedAt: now, UpdatedAt: now},
		{Name: "Tempered glass protector", Type: entity.ProductTypeAccessory, Price: 999, Stock: 200, CreatedAt: now, UpdatedAt: now},
		{Name: "Precision toolkit", Type: entity.ProductTypeAccessory, Price: 2499, Stock: 80, CreatedAt: now, UpdatedAt: now},
	}

	for _, sample := range samples {
		product := sample
		_, err := s.db.NewInsert().Model(&product).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded products", zap.Int("count", len(samples)))
	}
	return nil
}

func (s *Seeder) coupons(ctx context.Context) error {
	now := time.Now().UTC()
	expires := now.AddDate(1, 0, 0)
	samples := []entity.Coupon{
		{Code: "SAVE10", Type: entity.CouponTypeFixed, Amount: 1000, MinOrder: 5000, MaxUses: 1000, Active: true, ExpiresAt: &expires, CreatedAt: now},
		{Code: "REPAIR5", Type: entity.CouponTypePercent, Amount: 5, MinOrder: 2500, MaxUses: 0, Active: true, ExpiresAt: &expires, CreatedAt: now},
	}

	for _, sample := range samples {
		coupon := sample
		_, err := s.db.NewInsert().Model(&coupon).
			On("CONFLICT (code) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded coupons", zap.Int("count", len(samples)))
	}
	return nil
}
