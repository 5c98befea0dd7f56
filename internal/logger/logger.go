package logger

import (
	"context"

	"go-dbsync/internal/config"
	"go-dbsync/internal/database"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewLogger builds the console logger and tees it into the engine_logs
// collection.
func NewLogger(lc fx.Lifecycle, cfg *config.Config, mongodb *database.MongodbDB) (*zap.Logger, error) {
	dbWriter := NewDBLogWriter(mongodb, cfg)
	logger, err := build(cfg, dbWriter)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Sync()
			dbWriter.Close()
			return nil
		},
	})
	return logger, nil
}

// NewConsoleLogger builds the logger without the DB tee, for the CLI.
func NewConsoleLogger(cfg *config.Config) (*zap.Logger, error) {
	return build(cfg, nil)
}

func build(cfg *config.Config, dbWriter *DBLogWriter) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.IsProduction() {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Important: Enable Caller to get Function Name
	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	if dbWriter == nil {
		return baseLogger, nil
	}

	// We replace the logger's core with our "Tee" core (sends to both console and DB)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)
	return zap.New(finalCore, zap.AddCaller()), nil
}
