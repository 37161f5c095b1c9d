package catalog

import "go.uber.org/fx"

// Module provides the catalog repository.
var Module = fx.Provide(NewRepository)
