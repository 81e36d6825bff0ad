package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/app"
)

// Runs event consumers and the reservation sweeper without the HTTP surface.
func main() {
	fx.New(app.Worker).Run()
}
