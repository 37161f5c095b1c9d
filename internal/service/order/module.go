package order

import (
	"go.uber.org/fx"

	catalogrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/catalog"
	couponrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/coupon"
	orderrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
	sequencerepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/sequence"
)

// Module wires the order service behind its store interfaces.
var Module = fx.Options(
	fx.Provide(
		func(r *orderrepo.Repository) Store { return r },
		func(r *catalogrepo.Repository) Catalog { return r },
		func(r *couponrepo.Repository) Coupons { return r },
		func(r *sequencerepo.Repository) Sequencer { return r },
		NewService,
	),
)
