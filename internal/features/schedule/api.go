package schedule

import (
	"context"

	"go-dbsync/internal/common/api"
	"go-dbsync/internal/config"
	"go-dbsync/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ScheduleApi struct {
	controller *ScheduleController
	config     *config.Config
}

func NewScheduleApi(controller *ScheduleController, config *config.Config) api.Route {
	return &ScheduleApi{
		controller: controller,
		config:     config,
	}
}

func (h *ScheduleApi) Setup(app *fiber.App) {
	schedules := app.Group("/api/schedules", middleware.AuthMiddleware(h.config.SkipAuth))

	schedules.Get("/", h.controller.ListSchedules)
	schedules.Post("/refresh", middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator), h.controller.Refresh)
}

// RegisterScheduler starts the scheduler with the app unless disabled.
func RegisterScheduler(lc fx.Lifecycle, svc ScheduleService, cfg *config.Config, logger *zap.Logger) {
	if !cfg.SchedulerEnabled {
		logger.Info("Scheduler disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return svc.Stop()
		},
	})
}
