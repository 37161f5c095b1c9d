package ledger

import "go.uber.org/fx"

// Module provides the ledger repository.
var Module = fx.Provide(NewRepository)
