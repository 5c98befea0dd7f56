package sync

import (
	"go-dbsync/internal/common/api"
	"go-dbsync/internal/config"
	"go-dbsync/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	watcher    *JobWatcher
	config     *config.Config
}

func NewSyncApi(controller *SyncController, watcher *JobWatcher, config *config.Config) api.Route {
	return &SyncApi{
		controller: controller,
		watcher:    watcher,
		config:     config,
	}
}

// Setup registers all sync routes
func (h *SyncApi) Setup(app *fiber.App) {
	operator := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	syncGroup := app.Group("/api/sync", middleware.AuthMiddleware(h.config.SkipAuth))

	syncGroup.Post("/configs", admin, h.controller.CreateConfig)
	syncGroup.Get("/configs", h.controller.ListConfigs)
	syncGroup.Get("/configs/:id", h.controller.GetConfig)
	syncGroup.Put("/configs/:id", admin, h.controller.UpdateConfig)
	syncGroup.Delete("/configs/:id", admin, h.controller.DeleteConfig)
	syncGroup.Post("/configs/:id/run", operator, h.controller.TriggerRun)
	syncGroup.Get("/configs/:id/jobs", h.controller.ListJobs)

	syncGroup.Get("/jobs", h.controller.ListJobs)
	syncGroup.Get("/jobs/:id", h.controller.GetJob)
	syncGroup.Get("/jobs/:id/conflicts", h.controller.ListConflicts)
	syncGroup.Get("/jobs/:id/conflicts/export", h.controller.ExportConflicts)
	syncGroup.Get("/jobs/:id/ws", h.watcher.RequireUpgrade, websocket.New(h.watcher.Handle))

	syncGroup.Patch("/conflicts/:id", operator, h.controller.ResolveConflict)
}
