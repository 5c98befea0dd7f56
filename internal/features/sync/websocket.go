package sync

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const watchInterval = time.Second

// JobWatcher streams job progress over a websocket until the job ends.
type JobWatcher struct {
	service  SyncService
	logger   *zap.Logger
	interval time.Duration
}

func NewJobWatcher(service SyncService, logger *zap.Logger) *JobWatcher {
	return &JobWatcher{service: service, logger: logger.Named("watch"), interval: watchInterval}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (w *JobWatcher) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle sends a snapshot immediately, then once per interval, and closes
// after the terminal snapshot.
func (w *JobWatcher) Handle(c *websocket.Conn) {
	id := c.Params("id")
	log := w.logger.With(zap.String("job_id", id))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		job, err := w.service.GetJob(ctx, id)
		cancel()
		if err != nil {
			c.WriteJSON(fiber.Map{"error": err.Error()})
			return
		}

		if err := c.WriteJSON(progressOf(job)); err != nil {
			log.Debug("Watcher went away", zap.Error(err))
			return
		}
		if job.Status.Terminal() {
			return
		}
		<-ticker.C
	}
}
