package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/planetaketo/storefront/app/controllers"
	"github.com/planetaketo/storefront/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	webhookCtrl := controllers.NewWebhookController(h.deps.Stripe, h.deps.Fulfillment)
	checkoutCtrl := controllers.NewCheckoutController(h.deps.Stripe, h.deps.Fulfillment)
	downloadCtrl := controllers.NewDownloadController(h.deps.Fulfillment)
	adminCtrl := controllers.NewAdminController(h.deps.Fulfillment)

	// The webhook endpoint stays outside the limiter group. Stripe retries
	// aggressively after failures and must never be throttled away.
	app.Post("/api/stripe/webhook", webhookCtrl.HandleStripeWebhook)

	api := app.Group("/api", limiter.New(limiter.Config{Max: 60}))

	stripeGroup := api.Group("/stripe")
	stripeGroup.Post("/payment-intent", checkoutCtrl.HandleCreatePaymentIntent)
	stripeGroup.Post("/create-checkout", checkoutCtrl.HandleCreateCheckoutSession)
	stripeGroup.Post("/complete-purchase", checkoutCtrl.HandleCompletePurchase)

	download := api.Group("/download")
	download.Get("/validate/:token", downloadCtrl.HandleValidateToken)
	download.Get("/:token", downloadCtrl.HandleDownload)

	admin := api.Group("/admin", middleware.AdminAuthMiddleware())
	admin.Post("/retry-webhook", adminCtrl.HandleRetryWebhook)
	admin.Get("/stats", adminCtrl.HandleStats)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
