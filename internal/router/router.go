package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Y04ash/Projexx/internal/config"
	"github.com/Y04ash/Projexx/internal/handler"
	"github.com/Y04ash/Projexx/internal/middleware"
	"github.com/Y04ash/Projexx/internal/models"
	"github.com/Y04ash/Projexx/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler   *handler.SubmissionHandler
	UploadHandler       *handler.UploadHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware)

	if deps.UploadHandler != nil {
		uploads := protected.Group("",
			middleware.RequireRole(models.RoleStudent),
			middleware.RateLimit("uploads", 30, time.Minute),
		)
		deps.UploadHandler.Register(uploads)
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(protected)
	}

	if deps.NotificationHandler != nil {
		notifications := protected.Group("/notifications")
		deps.NotificationHandler.Register(notifications)
	}
}
