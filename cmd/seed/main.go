package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/config"
	"go-dbsync/internal/database"
	"go-dbsync/internal/features/datasource"
	"go-dbsync/internal/features/sync"
	"go-dbsync/internal/logger"
	"go-dbsync/internal/models"
	"go-dbsync/internal/secrets"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const demoPath = "cmd/seed/data/demo.json"

type demoStore struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Table string `json:"table"`
	DDL   string `json:"ddl"`
}

type demoData struct {
	Master  demoStore         `json:"master"`
	Slave   demoStore         `json:"slave"`
	Records []models.Record   `json:"records"`
	Config  models.SyncConfig `json:"config"`
}

// Seed creates two SQLite stores, registers them as datasources and adds a
// sync config between them. Existing datasources and configs are reused.
func Seed(
	lc fx.Lifecycle,
	dsService datasource.DataSourceService,
	syncService sync.SyncService,
	factory *adapters.Factory,
	logger *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()

				if err := seed(ctx, dsService, syncService, factory, logger); err != nil {
					logger.Error("Seeding failed", zap.Error(err))
					return
				}
				logger.Info("Seeding completed")
			}()
			return nil
		},
	})
}

func seed(ctx context.Context, dsService datasource.DataSourceService, syncService sync.SyncService, factory *adapters.Factory, logger *zap.Logger) error {
	b, err := os.ReadFile(demoPath)
	if err != nil {
		return err
	}
	var demo demoData
	if err := json.Unmarshal(b, &demo); err != nil {
		return fmt.Errorf("parse %s: %w", demoPath, err)
	}

	existing, err := dsService.ListDataSources(ctx)
	if err != nil {
		return err
	}

	master, err := ensureStore(ctx, dsService, existing, demo.Master, logger)
	if err != nil {
		return err
	}
	slave, err := ensureStore(ctx, dsService, existing, demo.Slave, logger)
	if err != nil {
		return err
	}

	a, err := factory.New(ctx, master)
	if err != nil {
		return err
	}
	err = adapters.Use(ctx, a, logger, func(a adapters.Adapter) error {
		for _, rec := range demo.Records {
			if _, err := a.UpsertRecord(ctx, demo.Master.Table, rec, demo.Config.MasterPKColumn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed master rows: %w", err)
	}
	logger.Info("Master rows seeded", zap.Int("count", len(demo.Records)))

	configs, err := syncService.ListConfigs(ctx)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if cfg.Name == demo.Config.Name {
			logger.Info("Sync config exists, skipping", zap.String("config_id", cfg.ID.Hex()))
			return nil
		}
	}

	cfg := demo.Config
	cfg.MasterDataSourceID = master.ID
	cfg.SlaveDataSourceID = slave.ID
	if err := syncService.CreateConfig(ctx, &cfg); err != nil {
		return err
	}
	logger.Info("Sync config created", zap.String("config_id", cfg.ID.Hex()))
	return nil
}

// ensureStore creates the SQLite file and table, then returns the matching
// datasource, registering it when missing.
func ensureStore(ctx context.Context, dsService datasource.DataSourceService, existing []models.DataSource, store demoStore, logger *zap.Logger) (*models.DataSource, error) {
	path, err := filepath.Abs(store.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, store.DDL); err != nil {
		return nil, fmt.Errorf("create %s: %w", store.Table, err)
	}

	for i := range existing {
		if existing[i].Name == store.Name {
			logger.Info("Datasource exists, skipping", zap.String("datasource", store.Name))
			return &existing[i], nil
		}
	}

	ds := &models.DataSource{
		Name:     store.Name,
		Type:     models.DataSourceTypeSQLite,
		Database: path,
		IsActive: true,
	}
	if err := dsService.CreateDataSource(ctx, ds); err != nil {
		return nil, err
	}
	logger.Info("Datasource created", zap.String("datasource", ds.Name), zap.String("path", path))
	return ds, nil
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			func(cfg *config.Config) (secrets.Resolver, error) {
				return secrets.NewManager(cfg.VaultAddr, cfg.VaultToken)
			},
			func(resolver secrets.Resolver, logger *zap.Logger) *adapters.Factory {
				return adapters.NewFactory(resolver, logger)
			},
			func(f *adapters.Factory) datasource.AdapterFactory { return f },

			datasource.NewDataSourceRepository,
			datasource.NewViewRepository,
			datasource.NewSchemaCacheRepository,
			datasource.NewDataSourceService,

			sync.NewConfigRepository,
			sync.NewJobRepository,
			sync.NewConflictRepository,
			sync.NewRunStore,
			sync.NewRunLock,
			sync.NewSyncExecutor,
			sync.NewSyncService,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	app.Run()
}
