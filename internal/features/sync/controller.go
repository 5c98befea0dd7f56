package sync

import (
	"context"
	"errors"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/middleware"
	"go-dbsync/internal/models"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{
		Service: service,
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	var cfgErr *adapters.ConfigurationError
	status := fiber.StatusInternalServerError
	switch {
	case IsNotFound(err):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrRunInProgress):
		status = fiber.StatusConflict
	case errors.As(err, &cfgErr):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (ctrl *SyncController) CreateConfig(c *fiber.Ctx) error {
	var cfg models.SyncConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.CreateConfig(ctx, &cfg); err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Sync config created successfully",
		"data":    cfg,
	})
}

func (ctrl *SyncController) ListConfigs(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	configs, err := ctrl.Service.ListConfigs(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"data": configs,
	})
}

func (ctrl *SyncController) GetConfig(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := ctrl.Service.GetConfig(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(cfg)
}

func (ctrl *SyncController) UpdateConfig(c *fiber.Ctx) error {
	var cfg models.SyncConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.UpdateConfig(ctx, c.Params("id"), &cfg); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Sync config updated successfully",
		"data":    cfg,
	})
}

func (ctrl *SyncController) DeleteConfig(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ctrl.Service.DeleteConfig(ctx, c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Sync config deleted successfully",
	})
}

// TriggerRun starts a run and answers 202 with the PENDING job.
func (ctrl *SyncController) TriggerRun(c *fiber.Ctx) error {
	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = middleware.CurrentUser(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := ctrl.Service.TriggerRun(ctx, c.Params("id"), req.TriggeredBy)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Sync job triggered successfully",
		"data":    job,
	})
}

func (ctrl *SyncController) ListJobs(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	configID := c.Params("id", c.Query("config_id"))
	jobs, err := ctrl.Service.ListJobs(ctx, configID, int64(c.QueryInt("limit", 50)))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"data": jobs,
	})
}

func (ctrl *SyncController) GetJob(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := ctrl.Service.GetJob(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(progressOf(job))
}

func (ctrl *SyncController) ListConflicts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conflicts, err := ctrl.Service.ListConflicts(ctx, c.Params("id"), models.ResolutionStatus(c.Query("status")))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"data": conflicts,
	})
}

func (ctrl *SyncController) ResolveConflict(c *fiber.Ctx) error {
	var req ResolveConflictRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conflict, err := ctrl.Service.ResolveConflict(ctx, c.Params("id"), req.Status)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(conflict)
}

func (ctrl *SyncController) ExportConflicts(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, filename, err := ctrl.Service.ExportConflicts(ctx, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment(filename)
	return c.Send(data)
}
