package sync

import (
	"context"
	"fmt"
	"time"

	"go-dbsync/internal/engine"
	"go-dbsync/internal/features/datasource"
	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RunStore resolves a config with its datasources and master view for the
// executor.
type RunStore struct {
	configs     ConfigRepository
	datasources datasource.DataSourceRepository
	views       datasource.ViewRepository
}

func NewRunStore(configs ConfigRepository, datasources datasource.DataSourceRepository, views datasource.ViewRepository) *RunStore {
	return &RunStore{configs: configs, datasources: datasources, views: views}
}

func (s *RunStore) LoadRun(ctx context.Context, configID primitive.ObjectID) (*engine.RunSpec, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	master, err := s.dataSource(ctx, "master", cfg.MasterDataSourceID)
	if err != nil {
		return nil, err
	}
	slave, err := s.dataSource(ctx, "slave", cfg.SlaveDataSourceID)
	if err != nil {
		return nil, err
	}

	spec := &engine.RunSpec{Config: cfg, Master: master, Slave: slave}
	if cfg.MasterViewID != nil && !cfg.MasterViewID.IsZero() {
		view, err := s.views.Get(ctx, cfg.MasterViewID.Hex())
		if err != nil {
			return nil, err
		}
		if view == nil {
			return nil, fmt.Errorf("master view %s: %w", cfg.MasterViewID.Hex(), ErrNotFound)
		}
		spec.MasterView = view
	}
	return spec, nil
}

func (s *RunStore) MarkSynced(ctx context.Context, configID primitive.ObjectID, at time.Time) error {
	return s.configs.MarkSynced(ctx, configID, at)
}

func (s *RunStore) dataSource(ctx context.Context, side string, id primitive.ObjectID) (*models.DataSource, error) {
	ds, err := s.datasources.Get(ctx, id.Hex())
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("%s datasource %s: %w", side, id.Hex(), ErrNotFound)
	}
	return ds, nil
}
