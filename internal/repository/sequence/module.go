package sequence

import "go.uber.org/fx"

// Module provides the sequence repository.
var Module = fx.Provide(NewRepository)
