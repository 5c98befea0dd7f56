package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/config"
	"go-dbsync/internal/database"
	"go-dbsync/internal/features/datasource"
	"go-dbsync/internal/features/sync"
	"go-dbsync/internal/logger"
	"go-dbsync/internal/secrets"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App holds the services a command needs. It is built once per invocation.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *database.MongodbDB
	datasources datasource.DataSourceService
	syncService sync.SyncService
	closeLock   func() error
}

var (
	app        *App
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "dbsync",
	Short: "Run and inspect master/slave database syncs",
	Long: `dbsync runs configured sync jobs without the HTTP server and inspects
datasources from the command line. It reads the same environment as the API.`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewConsoleLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Connect(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	resolver, err := secrets.NewManager(cfg.VaultAddr, cfg.VaultToken)
	if err != nil {
		return fmt.Errorf("init secrets: %w", err)
	}
	factory := adapters.NewFactory(resolver, log.Named("adapters"))

	datasources := datasource.NewDataSourceRepository(db)
	views := datasource.NewViewRepository(db)
	dsService := datasource.NewDataSourceService(datasources, views, datasource.NewSchemaCacheRepository(db), factory, log)

	configs := sync.NewConfigRepository(db)
	jobs := sync.NewJobRepository(db)
	conflicts := sync.NewConflictRepository(db)
	executor := sync.NewSyncExecutor(jobs, sync.NewRunStore(configs, datasources, views), conflicts, factory, cfg, log)

	lock, closeLock, err := sync.OpenRunLock(cfg, log)
	if err != nil {
		return fmt.Errorf("init run lock: %w", err)
	}

	app = &App{
		cfg:         cfg,
		logger:      log,
		db:          db,
		datasources: dsService,
		syncService: sync.NewSyncService(configs, jobs, conflicts, executor, lock, cfg, log),
		closeLock:   closeLock,
	}
	return nil
}

func teardownApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	app.syncService.Wait()
	app.logger.Sync()
	if err := app.closeLock(); err != nil {
		return err
	}
	return app.db.Close(context.Background())
}

// printResult writes v as indented JSON when --json is set, else via text.
func printResult(v interface{}, text func()) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(runCmd, conflictsCmd, testCmd, tablesCmd, schemaCmd)
}
