package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/config"
	"go-dbsync/internal/engine"
	"go-dbsync/internal/models"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type SyncService interface {
	CreateConfig(ctx context.Context, cfg *models.SyncConfig) error
	GetConfig(ctx context.Context, id string) (*models.SyncConfig, error)
	ListConfigs(ctx context.Context) ([]models.SyncConfig, error)
	ListScheduledConfigs(ctx context.Context) ([]models.SyncConfig, error)
	UpdateConfig(ctx context.Context, id string, cfg *models.SyncConfig) error
	DeleteConfig(ctx context.Context, id string) error

	// TriggerRun creates a PENDING job and runs it in the background.
	TriggerRun(ctx context.Context, configID, triggeredBy string) (*models.SyncJob, error)
	// RunSync runs a new job to completion before returning it.
	RunSync(ctx context.Context, configID, triggeredBy string) (*models.SyncJob, error)
	// Wait blocks until every background run has finished.
	Wait()

	ListJobs(ctx context.Context, configID string, limit int64) ([]models.SyncJob, error)
	GetJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListConflicts(ctx context.Context, jobID string, status models.ResolutionStatus) ([]models.Conflict, error)
	ResolveConflict(ctx context.Context, id string, status models.ResolutionStatus) (*models.Conflict, error)
	ExportConflicts(ctx context.Context, jobID string) ([]byte, string, error)
}

type SyncServiceImpl struct {
	configs   ConfigRepository
	jobs      JobRepository
	conflicts ConflictRepository
	executor  *engine.Executor
	lock      RunLock
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time

	wg gosync.WaitGroup
}

// NewSyncExecutor wires the engine to the Mongo stores.
func NewSyncExecutor(jobs JobRepository, runs *RunStore, conflicts ConflictRepository, factory *adapters.Factory, cfg *config.Config, logger *zap.Logger) *engine.Executor {
	return engine.NewExecutor(jobs, runs, conflicts, factory, logger,
		engine.WithDeletionScanLimit(cfg.DeletionScanLimit))
}

func NewSyncService(
	configs ConfigRepository,
	jobs JobRepository,
	conflicts ConflictRepository,
	executor *engine.Executor,
	lock RunLock,
	cfg *config.Config,
	logger *zap.Logger,
) SyncService {
	return &SyncServiceImpl{
		configs:   configs,
		jobs:      jobs,
		conflicts: conflicts,
		executor:  executor,
		lock:      lock,
		cfg:       cfg,
		logger:    logger.Named("sync"),
		now:       time.Now,
	}
}

func parseID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return oid, nil
}

// validate checks a config before it is stored and fills defaults.
func (s *SyncServiceImpl) validate(cfg *models.SyncConfig) error {
	switch {
	case cfg.Name == "":
		return &adapters.ConfigurationError{Field: "name", Reason: "is required"}
	case cfg.MasterDataSourceID.IsZero():
		return &adapters.ConfigurationError{Field: "master_datasource_id", Reason: "is required"}
	case cfg.SlaveDataSourceID.IsZero():
		return &adapters.ConfigurationError{Field: "slave_datasource_id", Reason: "is required"}
	case cfg.MasterTable == "":
		return &adapters.ConfigurationError{Field: "master_table", Reason: "is required"}
	case cfg.SlaveTable == "":
		return &adapters.ConfigurationError{Field: "slave_table", Reason: "is required"}
	case cfg.BatchSize < 0:
		return &adapters.ConfigurationError{Field: "batch_size", Reason: "must not be negative"}
	}

	if _, err := engine.NewFieldMapper(cfg.FieldMappings); err != nil {
		return err
	}

	switch cfg.ConflictPolicy {
	case "":
		cfg.ConflictPolicy = models.ConflictPolicyMasterWins
	case models.ConflictPolicyMasterWins, models.ConflictPolicySlaveWins, models.ConflictPolicyManual:
	case models.ConflictPolicyNewestWins:
		if cfg.TimestampColumn == "" {
			return &adapters.ConfigurationError{Field: "timestamp_column", Reason: "is required for newest_wins"}
		}
	default:
		return &adapters.ConfigurationError{Field: "conflict_policy", Reason: fmt.Sprintf("unknown policy %q", cfg.ConflictPolicy)}
	}

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return &adapters.ConfigurationError{Field: "schedule", Reason: err.Error()}
		}
	}
	if cfg.BatchSize == 0 && s.cfg.DefaultBatchSize > 0 {
		cfg.BatchSize = s.cfg.DefaultBatchSize
	}
	return nil
}

func (s *SyncServiceImpl) CreateConfig(ctx context.Context, cfg *models.SyncConfig) error {
	if err := s.validate(cfg); err != nil {
		return err
	}
	cfg.LastSyncAt = nil
	if err := s.configs.Create(ctx, cfg); err != nil {
		return err
	}
	s.logger.Info("Sync config created", zap.String("config_id", cfg.ID.Hex()), zap.String("name", cfg.Name))
	return nil
}

func (s *SyncServiceImpl) GetConfig(ctx context.Context, id string) (*models.SyncConfig, error) {
	oid, err := parseID("sync config", id)
	if err != nil {
		return nil, err
	}
	return s.configs.Get(ctx, oid)
}

func (s *SyncServiceImpl) ListConfigs(ctx context.Context) ([]models.SyncConfig, error) {
	return s.configs.List(ctx)
}

func (s *SyncServiceImpl) ListScheduledConfigs(ctx context.Context) ([]models.SyncConfig, error) {
	return s.configs.ListScheduled(ctx)
}

// UpdateConfig replaces the editable fields of a config. Identity, creation
// time and last sync time are kept.
func (s *SyncServiceImpl) UpdateConfig(ctx context.Context, id string, cfg *models.SyncConfig) error {
	existing, err := s.GetConfig(ctx, id)
	if err != nil {
		return err
	}
	if err := s.validate(cfg); err != nil {
		return err
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt
	cfg.LastSyncAt = existing.LastSyncAt
	return s.configs.Replace(ctx, cfg)
}

func (s *SyncServiceImpl) DeleteConfig(ctx context.Context, id string) error {
	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return err
	}
	return s.configs.Delete(ctx, cfg.ID)
}

// newJob takes the run lease and records a PENDING job for configID.
func (s *SyncServiceImpl) newJob(ctx context.Context, configID, triggeredBy string) (*models.SyncJob, Lease, error) {
	cfg, err := s.GetConfig(ctx, configID)
	if err != nil {
		return nil, nil, err
	}

	lease, err := s.lock.Acquire(ctx, cfg.ID.Hex())
	if err != nil {
		return nil, nil, err
	}

	job := &models.SyncJob{
		ID:          primitive.NewObjectID(),
		ConfigID:    cfg.ID,
		Status:      models.JobStatusPending,
		TriggeredBy: triggeredBy,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.release(lease, cfg.ID.Hex())
		return nil, nil, err
	}
	return job, lease, nil
}

func (s *SyncServiceImpl) TriggerRun(ctx context.Context, configID, triggeredBy string) (*models.SyncJob, error) {
	job, lease, err := s.newJob(ctx, configID, triggeredBy)
	if err != nil {
		return nil, err
	}
	snapshot := *job

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(context.Background(), job.ID, job.ConfigID, lease)
	}()

	s.logger.Info("Sync run triggered",
		zap.String("job_id", job.ID.Hex()),
		zap.String("config_id", job.ConfigID.Hex()),
		zap.String("triggered_by", triggeredBy))
	return &snapshot, nil
}

func (s *SyncServiceImpl) RunSync(ctx context.Context, configID, triggeredBy string) (*models.SyncJob, error) {
	job, lease, err := s.newJob(ctx, configID, triggeredBy)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, job.ID, job.ConfigID, lease)
}

// execute runs the job under its lease. Losing the lease cancels the run.
func (s *SyncServiceImpl) execute(ctx context.Context, jobID, configID primitive.ObjectID, lease Lease) (*models.SyncJob, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.release(lease, configID.Hex())

	go func() {
		select {
		case <-lease.Lost():
			cancel()
		case <-ctx.Done():
		}
	}()

	job, err := s.executor.Run(ctx, jobID)
	if err != nil {
		s.logger.Error("Sync run failed",
			zap.String("job_id", jobID.Hex()),
			zap.String("config_id", configID.Hex()),
			zap.Error(err))
	}
	return job, err
}

func (s *SyncServiceImpl) release(lease Lease, configID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		s.logger.Warn("Failed to release run lease", zap.String("config_id", configID), zap.Error(err))
	}
}

func (s *SyncServiceImpl) Wait() {
	s.wg.Wait()
}

// ListJobs lists recent jobs, newest first. An empty configID lists all.
func (s *SyncServiceImpl) ListJobs(ctx context.Context, configID string, limit int64) ([]models.SyncJob, error) {
	var filter *primitive.ObjectID
	if configID != "" {
		oid, err := parseID("sync config", configID)
		if err != nil {
			return nil, err
		}
		filter = &oid
	}
	return s.jobs.List(ctx, filter, limit)
}

func (s *SyncServiceImpl) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	oid, err := parseID("sync job", id)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetJob(ctx, oid)
}

func (s *SyncServiceImpl) ListConflicts(ctx context.Context, jobID string, status models.ResolutionStatus) ([]models.Conflict, error) {
	if status != "" && !status.Valid() {
		return nil, &adapters.ConfigurationError{Field: "status", Reason: fmt.Sprintf("unknown resolution status %q", status)}
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.conflicts.ListByJob(ctx, job.ID, status)
}

// ResolveConflict records an operator decision. The engine never applies it
// to the datastores; the next run re-evaluates the record.
func (s *SyncServiceImpl) ResolveConflict(ctx context.Context, id string, status models.ResolutionStatus) (*models.Conflict, error) {
	if !status.Valid() {
		return nil, &adapters.ConfigurationError{Field: "status", Reason: fmt.Sprintf("unknown resolution status %q", status)}
	}
	oid, err := parseID("conflict", id)
	if err != nil {
		return nil, err
	}

	var resolvedAt *time.Time
	if status != models.ResolutionPending {
		now := s.now().UTC()
		resolvedAt = &now
	}
	if err := s.conflicts.UpdateStatus(ctx, oid, status, resolvedAt); err != nil {
		return nil, err
	}
	return s.conflicts.Get(ctx, oid)
}

func (s *SyncServiceImpl) ExportConflicts(ctx context.Context, jobID string) ([]byte, string, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	cfg, err := s.configs.Get(ctx, job.ConfigID)
	if err != nil {
		return nil, "", err
	}
	conflicts, err := s.conflicts.ListByJob(ctx, job.ID, "")
	if err != nil {
		return nil, "", err
	}

	slaveColumn := func(master string) string { return master }
	if mapper, err := engine.NewFieldMapper(cfg.FieldMappings); err == nil {
		slaveColumn = func(master string) string {
			if col, ok := mapper.SlaveColumnFor(master); ok {
				return col
			}
			return master
		}
	}

	data, err := exportConflicts(conflicts, slaveColumn)
	if err != nil {
		return nil, "", err
	}
	return data, exportFilename(cfg, job), nil
}

// IsNotFound reports whether err means a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
