package system

import (
	"go-dbsync/internal/common/api"
	"go-dbsync/internal/config"
	"go-dbsync/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SystemApi struct {
	controller *SystemController
	config     *config.Config
}

func NewSystemApi(controller *SystemController, cfg *config.Config) api.Route {
	return &SystemApi{
		controller: controller,
		config:     cfg,
	}
}

// Setup registers health and identity routes
func (h *SystemApi) Setup(app *fiber.App) {
	app.Get("/health", h.controller.HealthCheck)

	debug := app.Group("/api/debug", middleware.AuthMiddleware(h.config.SkipAuth))
	debug.Get("/me", h.controller.WhoAmI)
}
