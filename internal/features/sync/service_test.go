package sync

import (
	"bytes"
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/config"
	"go-dbsync/internal/engine"
	"go-dbsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type mockConfigRepo struct {
	mu     gosync.Mutex
	items  map[primitive.ObjectID]*models.SyncConfig
	synced []primitive.ObjectID
}

func (m *mockConfigRepo) Create(ctx context.Context, cfg *models.SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID.IsZero() {
		cfg.ID = primitive.NewObjectID()
	}
	cp := *cfg
	m.items[cfg.ID] = &cp
	return nil
}

func (m *mockConfigRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.items[id]
	if !ok {
		return nil, notFound("sync config", id, mongo.ErrNoDocuments)
	}
	cp := *cfg
	return &cp, nil
}

func (m *mockConfigRepo) List(ctx context.Context) ([]models.SyncConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SyncConfig{}
	for _, cfg := range m.items {
		out = append(out, *cfg)
	}
	return out, nil
}

func (m *mockConfigRepo) ListScheduled(ctx context.Context) ([]models.SyncConfig, error) {
	all, _ := m.List(ctx)
	out := []models.SyncConfig{}
	for _, cfg := range all {
		if cfg.IsActive && cfg.Schedule != "" {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *mockConfigRepo) Replace(ctx context.Context, cfg *models.SyncConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.items[cfg.ID] = &cp
	return nil
}

func (m *mockConfigRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *mockConfigRepo) MarkSynced(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, id)
	if cfg, ok := m.items[id]; ok {
		cfg.LastSyncAt = &at
	}
	return nil
}

type mockJobRepo struct {
	mu    gosync.Mutex
	items map[primitive.ObjectID]models.SyncJob
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[job.ID] = *job
	return nil
}

func (m *mockJobRepo) GetJob(ctx context.Context, id primitive.ObjectID) (*models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.items[id]
	if !ok {
		return nil, notFound("sync job", id, mongo.ErrNoDocuments)
	}
	return &job, nil
}

func (m *mockJobRepo) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[job.ID] = *job
	return nil
}

func (m *mockJobRepo) Checkpoint(ctx context.Context, job *models.SyncJob) error {
	return m.UpdateJob(ctx, job)
}

func (m *mockJobRepo) List(ctx context.Context, configID *primitive.ObjectID, limit int64) ([]models.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SyncJob{}
	for _, job := range m.items {
		if configID == nil || job.ConfigID == *configID {
			out = append(out, job)
		}
	}
	return out, nil
}

type mockConflictRepo struct {
	mu    gosync.Mutex
	items []models.Conflict
}

func (m *mockConflictRepo) CreateConflict(ctx context.Context, c *models.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = primitive.NewObjectID()
	m.items = append(m.items, *c)
	return nil
}

func (m *mockConflictRepo) Get(ctx context.Context, id primitive.ObjectID) (*models.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			c := m.items[i]
			return &c, nil
		}
	}
	return nil, notFound("conflict", id, mongo.ErrNoDocuments)
}

func (m *mockConflictRepo) ListByJob(ctx context.Context, jobID primitive.ObjectID, status models.ResolutionStatus) ([]models.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Conflict{}
	for _, c := range m.items {
		if c.JobID == jobID && (status == "" || c.ResolutionStatus == status) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockConflictRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.ResolutionStatus, resolvedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].ResolutionStatus = status
			m.items[i].ResolvedAt = resolvedAt
			return nil
		}
	}
	return notFound("conflict", id, mongo.ErrNoDocuments)
}

type mockDataSourceRepo struct {
	items map[string]*models.DataSource
}

func (m *mockDataSourceRepo) Create(ctx context.Context, ds *models.DataSource) error {
	ds.ID = primitive.NewObjectID()
	m.items[ds.ID.Hex()] = ds
	return nil
}

func (m *mockDataSourceRepo) Get(ctx context.Context, id string) (*models.DataSource, error) {
	return m.items[id], nil
}

func (m *mockDataSourceRepo) List(ctx context.Context) ([]models.DataSource, error) {
	return nil, nil
}

func (m *mockDataSourceRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}

func (m *mockDataSourceRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type mockViewRepo struct {
	items map[string]*models.View
}

func (m *mockViewRepo) Create(ctx context.Context, view *models.View) error {
	view.ID = primitive.NewObjectID()
	m.items[view.ID.Hex()] = view
	return nil
}

func (m *mockViewRepo) Get(ctx context.Context, id string) (*models.View, error) {
	return m.items[id], nil
}

func (m *mockViewRepo) ListByDataSource(ctx context.Context, dataSourceID string) ([]models.View, error) {
	return nil, nil
}

func (m *mockViewRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return nil
}

func (m *mockViewRepo) Delete(ctx context.Context, id string) error {
	return nil
}

type countingLock struct {
	mu       gosync.Mutex
	busy     bool
	acquired int
	released int
}

func (l *countingLock) Acquire(ctx context.Context, configID string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy {
		return nil, ErrRunInProgress
	}
	l.acquired++
	return &countingLease{lock: l}, nil
}

type countingLease struct {
	lock *countingLock
}

func (l *countingLease) Lost() <-chan struct{} { return nil }

func (l *countingLease) Release(ctx context.Context) error {
	l.lock.mu.Lock()
	defer l.lock.mu.Unlock()
	l.lock.released++
	return nil
}

type fixture struct {
	svc       SyncService
	store     *adapters.MemoryStore
	configs   *mockConfigRepo
	jobs      *mockJobRepo
	conflicts *mockConflictRepo
	lock      *countingLock
	master    *models.DataSource
	slave     *models.DataSource
	views     *mockViewRepo
	dsRepo    *mockDataSourceRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := adapters.NewMemoryStore()
	store.CreateTable("crm", "contacts", "id")
	store.CreateTable("erp", "customers", "customer_id")

	f := &fixture{
		store:     store,
		configs:   &mockConfigRepo{items: make(map[primitive.ObjectID]*models.SyncConfig)},
		jobs:      &mockJobRepo{items: make(map[primitive.ObjectID]models.SyncJob)},
		conflicts: &mockConflictRepo{},
		lock:      &countingLock{},
		dsRepo:    &mockDataSourceRepo{items: make(map[string]*models.DataSource)},
		views:     &mockViewRepo{items: make(map[string]*models.View)},
	}
	f.master = &models.DataSource{Name: "CRM", Type: "memory", Database: "crm"}
	f.slave = &models.DataSource{Name: "ERP", Type: "memory", Database: "erp"}
	require.NoError(t, f.dsRepo.Create(context.Background(), f.master))
	require.NoError(t, f.dsRepo.Create(context.Background(), f.slave))

	factory := adapters.NewFactory(nil, zap.NewNop(), adapters.WithMemoryStore(store), adapters.WithoutBreakers())
	cfg := &config.Config{DefaultBatchSize: 50, DeletionScanLimit: 1000}
	runs := NewRunStore(f.configs, f.dsRepo, f.views)
	executor := NewSyncExecutor(f.jobs, runs, f.conflicts, factory, cfg, zap.NewNop())
	f.svc = NewSyncService(f.configs, f.jobs, f.conflicts, executor, f.lock, cfg, zap.NewNop())
	return f
}

func (f *fixture) config(policy models.ConflictPolicy) *models.SyncConfig {
	return &models.SyncConfig{
		Name:               "CRM to ERP",
		MasterDataSourceID: f.master.ID,
		MasterTable:        "contacts",
		MasterPKColumn:     "id",
		SlaveDataSourceID:  f.slave.ID,
		SlaveTable:         "customers",
		SlavePKColumn:      "customer_id",
		ConflictPolicy:     policy,
		FieldMappings: []models.FieldMapping{
			{MasterColumn: "id", SlaveColumn: "customer_id", IsKeyField: true},
			{MasterColumn: "name", SlaveColumn: "display_name", Transform: "upper"},
			{MasterColumn: "email", SlaveColumn: "email"},
		},
	}
}

func TestCreateConfigValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*models.SyncConfig)
		field  string
	}{
		{"Missing Name", func(c *models.SyncConfig) { c.Name = "" }, "name"},
		{"Missing Slave Table", func(c *models.SyncConfig) { c.SlaveTable = "" }, "slave_table"},
		{"Unknown Policy", func(c *models.SyncConfig) { c.ConflictPolicy = "coin_flip" }, "conflict_policy"},
		{"Newest Wins Without Timestamp", func(c *models.SyncConfig) { c.ConflictPolicy = models.ConflictPolicyNewestWins }, "timestamp_column"},
		{"Bad Schedule", func(c *models.SyncConfig) { c.Schedule = "every day" }, "schedule"},
		{"Negative Batch", func(c *models.SyncConfig) { c.BatchSize = -1 }, "batch_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := f.config(models.ConflictPolicyManual)
			tt.mutate(cfg)
			err := f.svc.CreateConfig(context.Background(), cfg)
			var cfgErr *adapters.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestCreateConfigDefaults(t *testing.T) {
	f := newFixture(t)
	cfg := f.config("")
	require.NoError(t, f.svc.CreateConfig(context.Background(), cfg))

	assert.Equal(t, models.ConflictPolicyMasterWins, cfg.ConflictPolicy)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.False(t, cfg.ID.IsZero())
}

func TestRunSyncEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("crm", "contacts",
		models.Record{"id": 1, "name": "ada", "email": "ada@example.com"},
		models.Record{"id": 2, "name": "grace", "email": "grace@example.com"},
	)
	f.store.Seed("erp", "customers",
		models.Record{"customer_id": 2, "display_name": "GRACE", "email": "old@example.com"},
	)

	cfg := f.config(models.ConflictPolicyManual)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))

	job, err := f.svc.RunSync(ctx, cfg.ID.Hex(), "cli")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(1), job.InsertedRecords)
	assert.Equal(t, int64(1), job.ConflictCount)
	assert.Equal(t, "cli", job.TriggeredBy)

	assert.Equal(t, 1, f.lock.acquired)
	assert.Equal(t, 1, f.lock.released)
	assert.Equal(t, []primitive.ObjectID{cfg.ID}, f.configs.synced)

	conflicts, err := f.svc.ListConflicts(ctx, job.ID.Hex(), models.ResolutionPending)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"email"}, conflicts[0].ConflictingFields)

	resolved, err := f.svc.ResolveConflict(ctx, conflicts[0].ID.Hex(), models.ResolutionMasterKept)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionMasterKept, resolved.ResolutionStatus)
	assert.NotNil(t, resolved.ResolvedAt)

	pending, err := f.svc.ListConflicts(ctx, job.ID.Hex(), models.ResolutionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTriggerRunRunsInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("crm", "contacts", models.Record{"id": 7, "name": "linus", "email": "l@example.com"})

	cfg := f.config(models.ConflictPolicyMasterWins)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))

	job, err := f.svc.TriggerRun(ctx, cfg.ID.Hex(), "api")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)

	f.svc.Wait()

	done, err := f.svc.GetJob(ctx, job.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, int64(1), done.InsertedRecords)
	assert.Equal(t, 1, f.lock.released)

	rows := f.store.Rows("erp", "customers")
	require.Len(t, rows, 1)
	assert.Equal(t, "LINUS", rows[0]["display_name"])

	jobs, err := f.svc.ListJobs(ctx, cfg.ID.Hex(), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestTriggerRunRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.config(models.ConflictPolicyMasterWins)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))

	f.lock.busy = true
	_, err := f.svc.TriggerRun(ctx, cfg.ID.Hex(), "api")
	assert.ErrorIs(t, err, ErrRunInProgress)

	jobs, err := f.svc.ListJobs(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "no job is recorded for a rejected trigger")
}

func TestRunSyncFailsOnMissingDataSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.config(models.ConflictPolicyMasterWins)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))
	require.NoError(t, f.dsRepo.Delete(ctx, f.slave.ID.Hex()))

	job, err := f.svc.RunSync(ctx, cfg.ID.Hex(), "cli")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "slave datasource")
	assert.Equal(t, 1, f.lock.released)
}

func TestUnknownIDsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetConfig(ctx, "not-an-id")
	assert.True(t, IsNotFound(err))

	_, err = f.svc.GetJob(ctx, primitive.NewObjectID().Hex())
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, mongo.ErrNoDocuments))

	_, err = f.svc.ResolveConflict(ctx, primitive.NewObjectID().Hex(), models.ResolutionDismissed)
	assert.True(t, IsNotFound(err))

	_, err = f.svc.ResolveConflict(ctx, primitive.NewObjectID().Hex(), "maybe")
	var cfgErr *adapters.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestUpdateConfigKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg := f.config(models.ConflictPolicyMasterWins)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))
	synced := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, f.configs.MarkSynced(ctx, cfg.ID, synced))

	update := f.config(models.ConflictPolicySlaveWins)
	update.Name = "Renamed"
	require.NoError(t, f.svc.UpdateConfig(ctx, cfg.ID.Hex(), update))

	stored, err := f.svc.GetConfig(ctx, cfg.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, models.ConflictPolicySlaveWins, stored.ConflictPolicy)
	require.NotNil(t, stored.LastSyncAt)
	assert.True(t, synced.Equal(*stored.LastSyncAt))
}

func TestExportConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Seed("crm", "contacts", models.Record{"id": 1, "name": "ada", "email": "new@example.com"})
	f.store.Seed("erp", "customers", models.Record{"customer_id": 1, "display_name": "ADA L", "email": "old@example.com"})

	cfg := f.config(models.ConflictPolicyManual)
	require.NoError(t, f.svc.CreateConfig(ctx, cfg))
	job, err := f.svc.RunSync(ctx, cfg.ID.Hex(), "cli")
	require.NoError(t, err)

	data, filename, err := f.svc.ExportConflicts(ctx, job.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "crm-to-erp-conflicts-"+job.ID.Hex()+".xlsx", filename)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(conflictSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, conflictColumns, rows[0])
	assert.Equal(t, []string{"1", "name", "display_name", "ada", "ADA L", "pending"}, rows[1][:6])
	assert.Equal(t, []string{"1", "email", "email", "new@example.com", "old@example.com", "pending"}, rows[2][:6])
}

func TestProgressOf(t *testing.T) {
	tests := []struct {
		name string
		job  models.SyncJob
		want float64
	}{
		{"Pending", models.SyncJob{Status: models.JobStatusPending}, 0},
		{"Halfway", models.SyncJob{Status: models.JobStatusRunning, TotalRecords: 10, ProcessedRecords: 5}, 50},
		{"Overshoot Capped", models.SyncJob{Status: models.JobStatusRunning, TotalRecords: 2, ProcessedRecords: 3}, 100},
		{"Completed Empty", models.SyncJob{Status: models.JobStatusCompleted}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := tt.job
			assert.Equal(t, tt.want, progressOf(&job).Percent)
		})
	}
}

var _ engine.ConfigStore = (*RunStore)(nil)
var _ engine.JobStore = (JobRepository)(nil)
var _ engine.ConflictStore = (ConflictRepository)(nil)
