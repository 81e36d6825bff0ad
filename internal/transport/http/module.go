package http

import (
	"go.uber.org/fx"

	accounttransport "github.com/Additional-Code/tableside/internal/transport/http/account"
	inventorytransport "github.com/Additional-Code/tableside/internal/transport/http/inventory"
	messagetransport "github.com/Additional-Code/tableside/internal/transport/http/message"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
	ordertransport "github.com/Additional-Code/tableside/internal/transport/http/order"
	reservationtransport "github.com/Additional-Code/tableside/internal/transport/http/reservation"
	settlementtransport "github.com/Additional-Code/tableside/internal/transport/http/settlement"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	middleware.Module,
	accounttransport.Module,
	inventorytransport.Module,
	ordertransport.Module,
	settlementtransport.Module,
	reservationtransport.Module,
	messagetransport.Module,
)
