package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/planetaketo/storefront/internal/pkg/cache"
	"github.com/planetaketo/storefront/internal/pkg/database"
	"github.com/planetaketo/storefront/internal/pkg/env"
	"github.com/planetaketo/storefront/internal/pkg/fulfillment"
	"github.com/planetaketo/storefront/internal/pkg/mail"
	"github.com/planetaketo/storefront/internal/pkg/payments"
	"github.com/planetaketo/storefront/internal/pkg/productstore"
	"github.com/planetaketo/storefront/internal/pkg/reconciler"
	"github.com/planetaketo/storefront/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	storeCfg, err := productstore.LoadConfig()
	if err != nil {
		log.Fatalf("product storage configuration invalid: %v", err)
	}
	store, err := productstore.NewClient(storeCfg)
	if err != nil {
		log.Fatalf("product storage unavailable: %v", err)
	}

	stripeClient := payments.NewClientFromEnv()
	mailer := mail.NewSMTPMailer()

	svc := fulfillment.NewServiceFromDB(database.GetDB(), mailer, store, fulfillment.ConfigFromEnv()).
		WithEventCache(fulfillment.NewRedisEventCache())

	rec := reconciler.New(fulfillment.NewRepository(database.GetDB()), svc, reconciler.ConfigFromEnv())
	if started, err := rec.Start(); err != nil {
		log.Fatalf("reconciler schedule invalid: %v", err)
	} else if !started {
		log.Print("reconciler disabled, set RECONCILER_SCHEDULE to enable")
	}

	app := fiber.New(fiber.Config{
		AppName:   "storefront",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Stripe:      stripeClient,
		Fulfillment: svc,
	})

	return app
}
