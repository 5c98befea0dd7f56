package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultDeletionScanLimit bounds the key sets loaded by deletion
// reconciliation.
const DefaultDeletionScanLimit = 100000

// JobStore persists job state.
type JobStore interface {
	GetJob(ctx context.Context, id primitive.ObjectID) (*models.SyncJob, error)
	// UpdateJob persists status, timestamps, counters and error message.
	UpdateJob(ctx context.Context, job *models.SyncJob) error
	// Checkpoint persists the counters after a batch.
	Checkpoint(ctx context.Context, job *models.SyncJob) error
}

// RunSpec is everything a run needs from the config store.
type RunSpec struct {
	Config     *models.SyncConfig
	MasterView *models.View
	Master     *models.DataSource
	Slave      *models.DataSource
}

// ConfigStore resolves a config with its datasources.
type ConfigStore interface {
	LoadRun(ctx context.Context, configID primitive.ObjectID) (*RunSpec, error)
	MarkSynced(ctx context.Context, configID primitive.ObjectID, at time.Time) error
}

// ConflictStore appends conflicts.
type ConflictStore interface {
	CreateConflict(ctx context.Context, c *models.Conflict) error
}

// AdapterFactory returns an unconnected adapter for a datasource.
type AdapterFactory interface {
	New(ctx context.Context, ds *models.DataSource) (adapters.Adapter, error)
}

// Executor drives sync runs: PENDING -> RUNNING -> COMPLETED or FAILED.
type Executor struct {
	jobs          JobStore
	configs       ConfigStore
	conflicts     ConflictStore
	factory       AdapterFactory
	logger        *zap.Logger
	now           func() time.Time
	deletionLimit int
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithDeletionScanLimit(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.deletionLimit = n
		}
	}
}

func NewExecutor(jobs JobStore, configs ConfigStore, conflicts ConflictStore, factory AdapterFactory, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		jobs:          jobs,
		configs:       configs,
		conflicts:     conflicts,
		factory:       factory,
		logger:        logger,
		now:           time.Now,
		deletionLimit: DefaultDeletionScanLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run holds the per-run state shared by the batch loop and the deletion pass.
type run struct {
	job      *models.SyncJob
	cfg      *models.SyncConfig
	mapper   *FieldMapper
	resolver *ConflictResolver
	filter   models.Filter

	masterKey string
	slaveKey  string

	master adapters.Adapter
	slave  adapters.Adapter
	log    *zap.Logger
}

// Run executes the job to a terminal state and returns it. The error is
// non-nil when the job failed or could not be loaded; a failed job is still
// returned with its counters.
func (e *Executor) Run(ctx context.Context, jobID primitive.ObjectID) (*models.SyncJob, error) {
	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fatal("load job", err)
	}
	if job.Status != models.JobStatusPending {
		return job, fmt.Errorf("job %s is %s, expected %s", job.ID.Hex(), job.Status, models.JobStatusPending)
	}

	log := e.logger.With(zap.String("job_id", job.ID.Hex()), zap.String("config_id", job.ConfigID.Hex()))

	spec, err := e.configs.LoadRun(ctx, job.ConfigID)
	if err != nil {
		return e.fail(ctx, log, job, fatal("load config", err))
	}
	r, err := e.prepare(ctx, job, spec, log)
	if err != nil {
		return e.fail(ctx, log, job, err)
	}

	started := e.now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &started
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return e.fail(ctx, log, job, fatal("mark running", err))
	}
	log.Info("Sync run started",
		zap.String("master_table", r.cfg.MasterTable),
		zap.String("slave_table", r.cfg.SlaveTable),
		zap.String("policy", string(r.cfg.ConflictPolicy)))

	err = adapters.Use(ctx, r.master, log, func(adapters.Adapter) error {
		return adapters.Use(ctx, r.slave, log, func(adapters.Adapter) error {
			return e.sync(ctx, r)
		})
	})
	if err != nil {
		return e.fail(ctx, log, job, fatal("sync", err))
	}

	completed := e.now().UTC()
	job.Status = models.JobStatusCompleted
	job.CompletedAt = &completed
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return job, fatal("mark completed", err)
	}
	if err := e.configs.MarkSynced(ctx, r.cfg.ID, completed); err != nil {
		log.Warn("Failed to stamp last sync time", zap.Error(err))
	}

	log.Info("Sync run completed",
		zap.Int64("total", job.TotalRecords),
		zap.Int64("processed", job.ProcessedRecords),
		zap.Int64("inserted", job.InsertedRecords),
		zap.Int64("updated", job.UpdatedRecords),
		zap.Int64("deleted", job.DeletedRecords),
		zap.Int64("conflicts", job.ConflictCount),
		zap.Int64("errors", job.ErrorCount))
	return job, nil
}

// prepare validates the RunSpec and builds the mapper, resolver and adapters.
func (e *Executor) prepare(ctx context.Context, job *models.SyncJob, spec *RunSpec, log *zap.Logger) (*run, error) {
	if spec == nil || spec.Config == nil || spec.Master == nil || spec.Slave == nil {
		return nil, fatal("load config", errors.New("config or datasource missing"))
	}
	cfg := spec.Config

	mapper, err := NewFieldMapper(cfg.FieldMappings)
	if err != nil {
		return nil, fatal("field mappings", err)
	}

	r := &run{
		job:      job,
		cfg:      cfg,
		mapper:   mapper,
		resolver: NewConflictResolver(cfg, mapper),
		filter:   viewFilter(spec.MasterView, cfg, log),
		log:      log,
	}
	r.resolver.now = e.now

	if km := mapper.KeyMapping(); km != nil {
		r.masterKey, r.slaveKey = km.MasterColumn, km.SlaveColumn
	} else {
		r.masterKey, r.slaveKey = cfg.MasterPKColumn, cfg.SlavePKColumn
	}
	if r.masterKey == "" || r.slaveKey == "" {
		return nil, fatal("field mappings", &adapters.ConfigurationError{
			Field:  "master_pk_column",
			Reason: "no key field mapping and no pk columns configured",
		})
	}

	if r.master, err = e.factory.New(ctx, spec.Master); err != nil {
		return nil, fatal("master adapter", err)
	}
	if r.slave, err = e.factory.New(ctx, spec.Slave); err != nil {
		return nil, fatal("slave adapter", err)
	}
	return r, nil
}

// viewFilter returns the view's usable clauses. Clauses without a value are
// dropped.
func viewFilter(view *models.View, cfg *models.SyncConfig, log *zap.Logger) models.Filter {
	if view == nil {
		return nil
	}
	if view.TargetTable != "" && view.TargetTable != cfg.MasterTable {
		log.Warn("Master view targets a different table",
			zap.String("view", view.Name),
			zap.String("view_table", view.TargetTable),
			zap.String("master_table", cfg.MasterTable))
	}
	return adapters.ActiveClauses(view.Filters)
}

func (e *Executor) sync(ctx context.Context, r *run) error {
	cfg := r.cfg

	total, err := r.master.CountRecords(ctx, cfg.MasterTable, r.filter)
	if err != nil {
		return fatal("count master", err)
	}
	r.job.TotalRecords = total
	if err := e.jobs.UpdateJob(ctx, r.job); err != nil {
		return fatal("persist total", err)
	}

	columns := r.readColumns()
	batchSize := cfg.EffectiveBatchSize()
	for offset := 0; ; offset += batchSize {
		records, err := r.master.ReadRecords(ctx, adapters.ReadRequest{
			Table:   cfg.MasterTable,
			Columns: columns,
			Where:   r.filter,
			OrderBy: r.masterKey,
			Limit:   batchSize,
			Offset:  offset,
		})
		if err != nil {
			return fatal("read master batch", err)
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			e.processRecord(ctx, r, rec)
		}

		if err := e.jobs.Checkpoint(ctx, r.job); err != nil {
			return fatal("checkpoint", err)
		}
		r.log.Debug("Batch processed",
			zap.Int("batch_offset", offset),
			zap.Int("batch_size", len(records)),
			zap.Int64("processed", r.job.ProcessedRecords))
	}

	if cfg.SyncDeletes {
		if err := e.reconcileDeletes(ctx, r); err != nil {
			return fatal("delete reconciliation", err)
		}
	}
	return nil
}

// readColumns is the master projection: every mapped column plus the key and
// timestamp columns. Nil reads all columns.
func (r *run) readColumns() []string {
	cols := r.mapper.MasterColumns()
	if len(cols) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for _, c := range []string{r.masterKey, r.cfg.TimestampColumn} {
		if c != "" && !seen[c] {
			cols = append(cols, c)
			seen[c] = true
		}
	}
	return cols
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpdated
	outcomeConflict
)

func (e *Executor) processRecord(ctx context.Context, r *run, rec models.Record) {
	result, err := e.syncRecord(ctx, r, rec)
	r.job.ProcessedRecords++
	if err != nil {
		r.job.ErrorCount++
		r.log.Warn("Record sync failed", zap.Error(err))
		return
	}
	switch result {
	case outcomeInserted:
		r.job.InsertedRecords++
	case outcomeUpdated:
		r.job.UpdatedRecords++
	case outcomeConflict:
		r.job.ConflictCount++
	}
}

// syncRecord applies the per-record decision table. Every failure, panics
// included, comes back as a *RecordSyncError.
func (e *Executor) syncRecord(ctx context.Context, r *run, rec models.Record) (result outcome, err error) {
	recordKey := Stringify(rec[r.masterKey])
	defer func() {
		if p := recover(); p != nil {
			err = &RecordSyncError{RecordKey: recordKey, Stage: "panic", Err: fmt.Errorf("%v", p)}
		}
	}()

	if rec[r.masterKey] == nil {
		return 0, &RecordSyncError{RecordKey: recordKey, Stage: "key", Err: fmt.Errorf("master key column %s is empty", r.masterKey)}
	}

	mapped, keyValue, err := r.mapForSlave(ctx, rec)
	if err != nil {
		return 0, &RecordSyncError{RecordKey: recordKey, Stage: "map", Err: err}
	}

	existing, err := r.slave.ReadRecordByKey(ctx, r.cfg.SlaveTable, r.slaveKey, keyValue)
	if err != nil {
		return 0, &RecordSyncError{RecordKey: recordKey, Stage: "read slave", Err: err}
	}
	if existing == nil {
		if _, err := r.slave.UpsertRecord(ctx, r.cfg.SlaveTable, mapped, r.slaveKey); err != nil {
			return 0, &RecordSyncError{RecordKey: recordKey, Stage: "insert", Err: err}
		}
		return outcomeInserted, nil
	}

	fields, err := r.mapper.FindConflicts(ctx, rec, existing)
	if err != nil {
		return 0, &RecordSyncError{RecordKey: recordKey, Stage: "compare", Err: err}
	}
	if len(fields) > 0 {
		side, err := r.resolver.Winner(recordKey, rec, existing, fields)
		if errors.Is(err, ErrManualResolutionRequired) {
			conflict := r.resolver.CreateConflictRecord(r.job.ID, recordKey, rec, existing, fields)
			if err := e.conflicts.CreateConflict(ctx, conflict); err != nil {
				return 0, &RecordSyncError{RecordKey: recordKey, Stage: "persist conflict", Err: err}
			}
			r.log.Debug("Conflict recorded", zap.String("record_key", recordKey), zap.Strings("fields", fields))
			return outcomeConflict, nil
		}
		if err != nil {
			return 0, &RecordSyncError{RecordKey: recordKey, Stage: "resolve", Err: err}
		}
		if side == SideSlave {
			r.resolver.KeepSlaveValues(mapped, existing, fields)
		}
	}

	if _, err := r.slave.UpsertRecord(ctx, r.cfg.SlaveTable, mapped, r.slaveKey); err != nil {
		return 0, &RecordSyncError{RecordKey: recordKey, Stage: "update", Err: err}
	}
	return outcomeUpdated, nil
}

// mapForSlave maps rec and makes sure the slave key column is set.
func (r *run) mapForSlave(ctx context.Context, rec models.Record) (models.Record, interface{}, error) {
	mapped, err := r.mapper.MasterToSlave(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	keyValue, err := r.slaveKeyValue(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	mapped[r.slaveKey] = keyValue
	return mapped, keyValue, nil
}

func (r *run) slaveKeyValue(ctx context.Context, rec models.Record) (interface{}, error) {
	if r.mapper.KeyMapping() != nil {
		return r.mapper.KeyValue(ctx, rec)
	}
	return rec[r.masterKey], nil
}

// reconcileDeletes removes slave rows whose key no longer exists on master.
// The master key set is read without the view filter and must fit in the
// scan limit; a truncated master set would delete live rows.
func (e *Executor) reconcileDeletes(ctx context.Context, r *run) error {
	masterRows, err := r.master.ReadRecords(ctx, adapters.ReadRequest{
		Table:   r.cfg.MasterTable,
		Columns: []string{r.masterKey},
		OrderBy: r.masterKey,
		Limit:   e.deletionLimit + 1,
	})
	if err != nil {
		return fmt.Errorf("read master keys: %w", err)
	}
	if len(masterRows) > e.deletionLimit {
		return fmt.Errorf("master table %s has more than %d rows, refusing to reconcile deletes", r.cfg.MasterTable, e.deletionLimit)
	}

	live := make(map[string]struct{}, len(masterRows))
	for _, row := range masterRows {
		if row[r.masterKey] == nil {
			continue
		}
		key, err := r.slaveKeyValue(ctx, row)
		if err != nil {
			return fmt.Errorf("map master key %v: %w", row[r.masterKey], err)
		}
		live[Stringify(key)] = struct{}{}
	}

	slaveRows, err := r.slave.ReadRecords(ctx, adapters.ReadRequest{
		Table:   r.cfg.SlaveTable,
		Columns: []string{r.slaveKey},
		OrderBy: r.slaveKey,
		Limit:   e.deletionLimit,
	})
	if err != nil {
		return fmt.Errorf("read slave keys: %w", err)
	}
	if len(slaveRows) >= e.deletionLimit {
		r.log.Warn("Slave key scan hit the limit, some orphans may remain", zap.Int("limit", e.deletionLimit))
	}

	for _, row := range slaveRows {
		key := row[r.slaveKey]
		if key == nil {
			continue
		}
		if _, ok := live[Stringify(key)]; ok {
			continue
		}
		deleted, err := r.slave.DeleteRecord(ctx, r.cfg.SlaveTable, r.slaveKey, key)
		if err != nil {
			return fmt.Errorf("delete %v: %w", key, err)
		}
		if deleted {
			r.job.DeletedRecords++
			r.log.Debug("Deleted orphan", zap.String("record_key", Stringify(key)))
		}
	}
	return nil
}

// fail records err on the job and marks it FAILED, keeping its counters.
func (e *Executor) fail(ctx context.Context, log *zap.Logger, job *models.SyncJob, err error) (*models.SyncJob, error) {
	completed := e.now().UTC()
	job.Status = models.JobStatusFailed
	job.CompletedAt = &completed
	job.ErrorMessage = err.Error()

	if uerr := e.jobs.UpdateJob(context.WithoutCancel(ctx), job); uerr != nil {
		log.Error("Failed to persist job failure", zap.Error(uerr))
	}
	log.Error("Sync run failed", zap.Error(err), zap.String("suggestion", adapters.Suggest(err)))
	return job, err
}
