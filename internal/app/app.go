package app

import (
	"go.uber.org/fx"

	"github.com/mustafamuhammed29/handyland-sub001/internal/cache"
	"github.com/mustafamuhammed29/handyland-sub001/internal/config"
	"github.com/mustafamuhammed29/handyland-sub001/internal/database"
	"github.com/mustafamuhammed29/handyland-sub001/internal/logger"
	"github.com/mustafamuhammed29/handyland-sub001/internal/messaging"
	"github.com/mustafamuhammed29/handyland-sub001/internal/observability"
	repositorycatalog "github.com/mustafamuhammed29/handyland-sub001/internal/repository/catalog"
	repositorycoupon "github.com/mustafamuhammed29/handyland-sub001/internal/repository/coupon"
	repositoryledger "github.com/mustafamuhammed29/handyland-sub001/internal/repository/ledger"
	repositoryorder "github.com/mustafamuhammed29/handyland-sub001/internal/repository/order"
	repositorysequence "github.com/mustafamuhammed29/handyland-sub001/internal/repository/sequence"
	grpcserver "github.com/mustafamuhammed29/handyland-sub001/internal/server/grpc"
	httpserver "github.com/mustafamuhammed29/handyland-sub001/internal/server/http"
	serviceorder "github.com/mustafamuhammed29/handyland-sub001/internal/service/order"
	servicepayment "github.com/mustafamuhammed29/handyland-sub001/internal/service/payment"
	transporthttp "github.com/mustafamuhammed29/handyland-sub001/internal/transport/http"
	"github.com/mustafamuhammed29/handyland-sub001/internal/worker"
	workernotify "github.com/mustafamuhammed29/handyland-sub001/internal/worker/notify"
	workersweep "github.com/mustafamuhammed29/handyland-sub001/internal/worker/sweep"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositorycatalog.Module,
	repositorycoupon.Module,
	repositoryledger.Module,
	repositoryorder.Module,
	repositorysequence.Module,
	serviceorder.Module,
	servicepayment.Module,
)

// HTTP wires the HTTP transport and the pending-order sweep on top of the
// core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
	workersweep.Module,
)

// GRPC layers the gRPC server onto the HTTP wiring.
var GRPC = fx.Options(
	HTTP,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workernotify.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
