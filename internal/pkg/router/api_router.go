package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/hallway-app/hallway/app/controllers"
	"github.com/hallway-app/hallway/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: 300,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hallway API",
		})
	})

	v1 := api.Group("/v1")

	webhooks := v1.Group("/webhooks")
	webhooks.Post("/paddle", controllers.HandlePaddleWebhook)
	webhooks.Post("/room", controllers.HandleRoomWebhook)

	// Operator-only queue introspection.
	internal := v1.Group("/internal", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", "admin"),
		},
	}))
	internal.Get("/queue", controllers.HandleQueueStats)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
