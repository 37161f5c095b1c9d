package payment

import (
	"go.uber.org/fx"

	ledgerrepo "github.com/mustafamuhammed29/handyland-sub001/internal/repository/ledger"
	ordersvc "github.com/mustafamuhammed29/handyland-sub001/internal/service/order"
)

// Module wires the payment service, its provider client and the store
// interfaces it consumes.
var Module = fx.Options(
	fx.Provide(
		func(s *ordersvc.Service) Orders { return s },
		func(r *ledgerrepo.Repository) Ledger { return r },
		NewHostedProvider,
		NewService,
	),
)
