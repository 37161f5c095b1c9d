package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/mustafamuhammed29/handyland-sub001/internal/transport/http/order"
	paymenttransport "github.com/mustafamuhammed29/handyland-sub001/internal/transport/http/payment"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	paymenttransport.Module,
)
