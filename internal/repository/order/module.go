package order

import "go.uber.org/fx"

// Module provides the order repository.
var Module = fx.Provide(NewRepository)
