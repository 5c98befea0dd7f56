package main

import (
	"context"
	"fmt"
	"log"

	"go-dbsync/internal/adapters"
	common_api "go-dbsync/internal/common/api"
	"go-dbsync/internal/config"
	"go-dbsync/internal/database"
	"go-dbsync/internal/features/datasource"
	"go-dbsync/internal/features/schedule"
	"go-dbsync/internal/features/sync"
	"go-dbsync/internal/features/system"
	"go-dbsync/internal/logger"
	"go-dbsync/internal/middleware"
	"go-dbsync/internal/secrets"
	"go-dbsync/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	return app
}

// NewSecretResolver resolves credential references through env and Vault.
func NewSecretResolver(cfg *config.Config) (secrets.Resolver, error) {
	return secrets.NewManager(cfg.VaultAddr, cfg.VaultToken)
}

func NewAdapterFactory(resolver secrets.Resolver, logger *zap.Logger) *adapters.Factory {
	return adapters.NewFactory(resolver, logger.Named("adapters"))
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	logger.Info("Registering routes", zap.Int("count", len(routes)))
	for _, route := range routes {
		logger.Debug("Setting up route", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits. In-flight runs are drained after
// the listener closes.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, syncService sync.SyncService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := app.Shutdown()
			syncService.Wait()
			return err
		},
	})
}

func main() {
	utilsConfig := fx.Invoke(func(cfg *config.Config) {
		utils.SetSecret(cfg.JWTSecret)
	})

	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Adapters
			NewSecretResolver,
			NewAdapterFactory,
			func(f *adapters.Factory) datasource.AdapterFactory { return f },

			// Initialize Repository
			datasource.NewDataSourceRepository,
			datasource.NewViewRepository,
			datasource.NewSchemaCacheRepository,
			sync.NewConfigRepository,
			sync.NewJobRepository,
			sync.NewConflictRepository,
			sync.NewRunStore,
			sync.NewRunLock,

			// Initialize Service
			datasource.NewDataSourceService,
			sync.NewSyncExecutor,
			sync.NewSyncService,
			schedule.NewScheduleService,

			// Initialize Controller
			system.NewSystemController,
			datasource.NewDataSourceController,
			sync.NewSyncController,
			sync.NewJobWatcher,
			schedule.NewScheduleController,

			// Initialize API Routes
			AsRoute(system.NewSystemApi),
			AsRoute(datasource.NewDataSourceApi),
			AsRoute(sync.NewSyncApi),
			AsRoute(schedule.NewScheduleApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		utilsConfig,
		fx.Invoke(
			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			schedule.RegisterScheduler,
		),
	)

	app.Run()
}
