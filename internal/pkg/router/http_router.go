package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/planetaketo/storefront/internal/pkg/database"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"service": "storefront", "status": "ok"})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		db := database.GetDB()
		if db == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "database": "down"})
		}
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "database": "down"})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "database": "up"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
