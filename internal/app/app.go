package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/logger"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/observability"
	"github.com/Additional-Code/tableside/internal/realtime"
	repositoryaccount "github.com/Additional-Code/tableside/internal/repository/account"
	repositoryinventory "github.com/Additional-Code/tableside/internal/repository/inventory"
	repositorymessage "github.com/Additional-Code/tableside/internal/repository/message"
	repositoryorder "github.com/Additional-Code/tableside/internal/repository/order"
	repositoryreservation "github.com/Additional-Code/tableside/internal/repository/reservation"
	grpcserver "github.com/Additional-Code/tableside/internal/server/grpc"
	httpserver "github.com/Additional-Code/tableside/internal/server/http"
	serviceaccount "github.com/Additional-Code/tableside/internal/service/account"
	serviceinventory "github.com/Additional-Code/tableside/internal/service/inventory"
	servicemessage "github.com/Additional-Code/tableside/internal/service/message"
	serviceorder "github.com/Additional-Code/tableside/internal/service/order"
	servicereservation "github.com/Additional-Code/tableside/internal/service/reservation"
	servicesettlement "github.com/Additional-Code/tableside/internal/service/settlement"
	transporthttp "github.com/Additional-Code/tableside/internal/transport/http"
	"github.com/Additional-Code/tableside/internal/worker"
	workerorder "github.com/Additional-Code/tableside/internal/worker/order"
)

// Infra provides configuration, logging and the external connections.
var Infra = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	database.Module,
	cache.Module,
	messaging.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Infra,
	auth.Module,
	realtime.Module,
	repositoryaccount.Module,
	repositoryinventory.Module,
	repositorymessage.Module,
	repositoryorder.Module,
	repositoryreservation.Module,
	serviceaccount.Module,
	serviceinventory.Module,
	servicemessage.Module,
	serviceorder.Module,
	servicereservation.Module,
	servicesettlement.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker runs event handlers and the reservation sweeper.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
