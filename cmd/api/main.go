package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/app"
)

// Serves the REST, websocket and gRPC health endpoints.
func main() {
	fx.New(app.HTTP).Run()
}
