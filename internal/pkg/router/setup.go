package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/payments"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries the shared services the route handlers need.
type Deps struct {
	Stripe      *payments.Client
	Fulfillment *fulfillment.Service
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
