package schedule

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

type ScheduleController struct {
	Service ScheduleService
}

func NewScheduleController(service ScheduleService) *ScheduleController {
	return &ScheduleController{
		Service: service,
	}
}

func (ctrl *ScheduleController) ListSchedules(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": ctrl.Service.List(),
	})
}

func (ctrl *ScheduleController) Refresh(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.Refresh(ctx); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"message": "Schedules reloaded",
		"data":    ctrl.Service.List(),
	})
}
