package coupon

import "go.uber.org/fx"

// Module provides the coupon repository.
var Module = fx.Provide(NewRepository)
