package system

import (
	"context"
	"time"

	"go-dbsync/internal/database"
	"go-dbsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// Pinger is satisfied by the store client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemController struct {
	store   Pinger
	started time.Time
}

func NewSystemController(db *database.MongodbDB) *SystemController {
	return newSystemController(db)
}

func newSystemController(store Pinger) *SystemController {
	return &SystemController{store: store, started: time.Now()}
}

// HealthCheck answers 503 when the store is unreachable.
func (ctrl *SystemController) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uptime := time.Since(ctrl.started).Round(time.Second).String()
	if err := ctrl.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"store":  err.Error(),
			"uptime": uptime,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ok",
		"uptime": uptime,
	})
}

// WhoAmI echoes the caller's claims.
func (ctrl *SystemController) WhoAmI(c *fiber.Ctx) error {
	claims, _ := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": claims.UserID,
		"roles":   claims.Roles,
	})
}
