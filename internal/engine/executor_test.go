package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeJobStore struct {
	mu          sync.Mutex
	jobs        map[primitive.ObjectID]models.SyncJob
	checkpoints []int64
	statuses    []models.JobStatus
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[primitive.ObjectID]models.SyncJob)}
}

func (s *fakeJobStore) add(configID primitive.ObjectID) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID()
	s.jobs[id] = models.SyncJob{ID: id, ConfigID: configID, Status: models.JobStatusPending}
	return id
}

func (s *fakeJobStore) GetJob(ctx context.Context, id primitive.ObjectID) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return &job, nil
}

func (s *fakeJobStore) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *fakeJobStore) Checkpoint(ctx context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.checkpoints = append(s.checkpoints, job.ProcessedRecords)
	return nil
}

type fakeConfigStore struct {
	spec   *RunSpec
	err    error
	synced []time.Time
}

func (s *fakeConfigStore) LoadRun(ctx context.Context, configID primitive.ObjectID) (*RunSpec, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.spec, nil
}

func (s *fakeConfigStore) MarkSynced(ctx context.Context, configID primitive.ObjectID, at time.Time) error {
	s.synced = append(s.synced, at)
	return nil
}

type fakeConflictStore struct {
	conflicts []*models.Conflict
	err       error
}

func (s *fakeConflictStore) CreateConflict(ctx context.Context, c *models.Conflict) error {
	if s.err != nil {
		return s.err
	}
	s.conflicts = append(s.conflicts, c)
	return nil
}

type harness struct {
	store     *adapters.MemoryStore
	jobs      *fakeJobStore
	configs   *fakeConfigStore
	conflicts *fakeConflictStore
	executor  *Executor
	cfg       *models.SyncConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := adapters.NewMemoryStore()
	store.CreateTable("master", "contacts", "id")
	store.CreateTable("slave", "people", "id")

	cfg := &models.SyncConfig{
		ID:             primitive.NewObjectID(),
		MasterTable:    "contacts",
		MasterPKColumn: "id",
		SlaveTable:     "people",
		SlavePKColumn:  "id",
		BatchSize:      2,
		ConflictPolicy: models.ConflictPolicyManual,
		FieldMappings: []models.FieldMapping{
			{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
			{MasterColumn: "name", SlaveColumn: "full_name"},
			{MasterColumn: "status", SlaveColumn: "status"},
		},
	}
	h := &harness{
		store:     store,
		jobs:      newFakeJobStore(),
		conflicts: &fakeConflictStore{},
		cfg:       cfg,
	}
	h.configs = &fakeConfigStore{spec: &RunSpec{
		Config: cfg,
		Master: &models.DataSource{Name: "master", Type: models.DataSourceTypeMemory, Database: "master"},
		Slave:  &models.DataSource{Name: "slave", Type: models.DataSourceTypeMemory, Database: "slave"},
	}}

	factory := adapters.NewFactory(nil, zap.NewNop(), adapters.WithMemoryStore(store), adapters.WithoutBreakers())
	h.executor = NewExecutor(h.jobs, h.configs, h.conflicts, factory, zap.NewNop())
	return h
}

func (h *harness) run(t *testing.T) (*models.SyncJob, error) {
	t.Helper()
	return h.executor.Run(context.Background(), h.jobs.add(h.cfg.ID))
}

func TestExecutorInsertsInBatches(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A"},
		models.Record{"id": 2, "name": "Bob", "status": "A"},
		models.Record{"id": 3, "name": "Cid", "status": "B"},
	)

	job, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(3), job.TotalRecords)
	assert.Equal(t, int64(3), job.ProcessedRecords)
	assert.Equal(t, int64(3), job.InsertedRecords)
	assert.Equal(t, int64(0), job.UpdatedRecords)
	assert.Equal(t, int64(0), job.ErrorCount)
	assert.Equal(t, []int64{2, 3}, h.jobs.checkpoints)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.Len(t, h.configs.synced, 1)
	assert.Equal(t, models.JobStatusRunning, h.jobs.statuses[0])

	rows := h.store.Rows("slave", "people")
	require.Len(t, rows, 3)
	assert.Equal(t, models.Record{"id": 1, "full_name": "Ann", "status": "A"}, rows[0])
}

func TestExecutorManualConflict(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("master", "contacts", models.Record{"id": 1, "name": "Ann", "status": "A"})
	h.store.Seed("slave", "people", models.Record{"id": 1, "full_name": "Ann", "status": "B"})

	job, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(1), job.ConflictCount)
	assert.Equal(t, int64(0), job.UpdatedRecords)
	require.Len(t, h.conflicts.conflicts, 1)

	c := h.conflicts.conflicts[0]
	assert.Equal(t, []string{"status"}, c.ConflictingFields)
	assert.Equal(t, job.ID, c.JobID)
	assert.Equal(t, "1", c.RecordKey)
	assert.Equal(t, "A", c.MasterData["status"])
	assert.Equal(t, "B", c.SlaveData["status"])

	assert.Equal(t, "B", h.store.Rows("slave", "people")[0]["status"], "slave row is untouched")
}

func TestExecutorAutoResolvesAndUpdates(t *testing.T) {
	h := newHarness(t)
	h.cfg.ConflictPolicy = models.ConflictPolicyMasterWins
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A"},
		models.Record{"id": 2, "name": "Bob", "status": "A"},
	)
	h.store.Seed("slave", "people",
		models.Record{"id": 1, "full_name": "Ann", "status": "B"},
		models.Record{"id": 2, "full_name": "Bob", "status": "A"},
	)

	job, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, int64(2), job.UpdatedRecords)
	assert.Equal(t, int64(0), job.ConflictCount)
	assert.Empty(t, h.conflicts.conflicts)
	assert.Equal(t, "A", h.store.Rows("slave", "people")[0]["status"])
}

func TestExecutorSlaveWinsKeepsStoredValue(t *testing.T) {
	tests := []struct {
		name   string
		policy models.ConflictPolicy
		master models.Record
		slave  models.Record
	}{
		{
			name:   "Slave Wins",
			policy: models.ConflictPolicySlaveWins,
			master: models.Record{"id": 1, "name": "Ann", "status": "A"},
			slave:  models.Record{"id": 1, "full_name": "x-Bob", "status": "A"},
		},
		{
			name:   "Newest Wins With Newer Slave",
			policy: models.ConflictPolicyNewestWins,
			master: models.Record{"id": 1, "name": "Ann", "status": "2024-01-01T00:00:00Z"},
			slave:  models.Record{"id": 1, "full_name": "x-Bob", "status": "2024-06-01T00:00:00Z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.cfg.ConflictPolicy = tt.policy
			h.cfg.TimestampColumn = "status"
			h.cfg.FieldMappings[1].Transform = "prefix:x-"
			h.store.Seed("master", "contacts", tt.master)
			h.store.Seed("slave", "people", tt.slave)

			for i := 0; i < 3; i++ {
				job, err := h.run(t)
				require.NoError(t, err)
				assert.Equal(t, models.JobStatusCompleted, job.Status)
				assert.Equal(t, int64(0), job.ErrorCount)
				assert.Equal(t, "x-Bob", h.store.Rows("slave", "people")[0]["full_name"], "run %d", i+1)
			}
			assert.Equal(t, tt.slave["status"], h.store.Rows("slave", "people")[0]["status"])
		})
	}
}

func TestExecutorMasterWinsAppliesTransform(t *testing.T) {
	h := newHarness(t)
	h.cfg.ConflictPolicy = models.ConflictPolicyMasterWins
	h.cfg.FieldMappings[1].Transform = "prefix:x-"
	h.store.Seed("master", "contacts", models.Record{"id": 1, "name": "Ann", "status": "A"})
	h.store.Seed("slave", "people", models.Record{"id": 1, "full_name": "x-Bob", "status": "A"})

	for i := 0; i < 2; i++ {
		_, err := h.run(t)
		require.NoError(t, err)
		assert.Equal(t, "x-Ann", h.store.Rows("slave", "people")[0]["full_name"])
	}
}

func TestExecutorSyncDeletes(t *testing.T) {
	h := newHarness(t)
	h.cfg.SyncDeletes = true
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A"},
		models.Record{"id": 2, "name": "Bob", "status": "A"},
	)
	h.store.Seed("slave", "people",
		models.Record{"id": 1, "full_name": "Ann", "status": "A"},
		models.Record{"id": 2, "full_name": "Bob", "status": "A"},
		models.Record{"id": 3, "full_name": "Gone", "status": "A"},
	)

	job, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.DeletedRecords)
	assert.Equal(t, int64(2), job.UpdatedRecords)
	assert.Len(t, h.store.Rows("slave", "people"), 2)

	job, err = h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(0), job.DeletedRecords)
	assert.Len(t, h.store.Rows("slave", "people"), 2)
}

func TestExecutorDeletionScanLimit(t *testing.T) {
	h := newHarness(t)
	h.cfg.SyncDeletes = true
	h.executor.deletionLimit = 1
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A"},
		models.Record{"id": 2, "name": "Bob", "status": "A"},
	)
	h.store.Seed("slave", "people", models.Record{"id": 3, "full_name": "Keep", "status": "A"})

	job, err := h.run(t)
	require.Error(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, int64(2), job.InsertedRecords, "counters survive failure")
	assert.Len(t, h.store.Rows("slave", "people"), 3, "nothing deleted from a truncated key set")
}

func TestExecutorRecordErrorsDoNotAbort(t *testing.T) {
	h := newHarness(t)
	h.cfg.FieldMappings = append(h.cfg.FieldMappings, models.FieldMapping{MasterColumn: "qty", SlaveColumn: "qty", Transform: "int"})
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A", "qty": "3"},
		models.Record{"id": 2, "name": "Bob", "status": "A", "qty": "lots"},
		models.Record{"id": nil, "name": "NoKey", "status": "A", "qty": "1"},
		models.Record{"id": 4, "name": "Dee", "status": "A", "qty": ""},
	)

	job, err := h.run(t)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(4), job.ProcessedRecords)
	assert.Equal(t, int64(2), job.InsertedRecords)
	assert.Equal(t, int64(2), job.ErrorCount)
	assert.Equal(t, job.ProcessedRecords, job.InsertedRecords+job.UpdatedRecords+job.ConflictCount+job.ErrorCount)
}

func TestExecutorConflictPersistFailureCountsAsError(t *testing.T) {
	h := newHarness(t)
	h.conflicts.err = errors.New("insert failed")
	h.store.Seed("master", "contacts", models.Record{"id": 1, "name": "Ann", "status": "A"})
	h.store.Seed("slave", "people", models.Record{"id": 1, "full_name": "Ann", "status": "B"})

	job, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(0), job.ConflictCount)
	assert.Equal(t, int64(1), job.ErrorCount)
}

func TestExecutorViewFilter(t *testing.T) {
	h := newHarness(t)
	h.configs.spec.MasterView = &models.View{
		Name:        "active",
		TargetTable: "contacts",
		Filters: models.Filter{
			{Field: "status", Operator: "==", Value: "A"},
			{Field: "owner", Operator: "==", Value: ""},
		},
	}
	h.store.Seed("master", "contacts",
		models.Record{"id": 1, "name": "Ann", "status": "A"},
		models.Record{"id": 2, "name": "Bob", "status": "B"},
		models.Record{"id": 3, "name": "Cid", "status": "A"},
	)

	job, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(2), job.TotalRecords)
	assert.Equal(t, int64(2), job.InsertedRecords)
}

func TestExecutorPKColumnsWithoutKeyMapping(t *testing.T) {
	h := newHarness(t)
	h.store.CreateTable("slave", "people_ext", "ext_id")
	h.cfg.SlaveTable = "people_ext"
	h.cfg.SlavePKColumn = "ext_id"
	h.cfg.FieldMappings = []models.FieldMapping{{MasterColumn: "name", SlaveColumn: "name", Transform: "lower"}}
	h.store.Seed("master", "contacts", models.Record{"id": 9, "name": "Ann", "status": "A"})

	job, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.InsertedRecords)
	assert.Equal(t, []models.Record{{"ext_id": 9, "name": "ann"}}, h.store.Rows("slave", "people_ext"))

	job, err = h.run(t)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.UpdatedRecords)
}

func TestExecutorConfigLookupFailure(t *testing.T) {
	h := newHarness(t)
	h.configs.err = errors.New("config not found")

	job, err := h.run(t)
	var jfe *JobFatalError
	require.ErrorAs(t, err, &jfe)
	assert.Equal(t, "load config", jfe.Stage)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "config not found")
	stored, _ := h.jobs.GetJob(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Empty(t, h.configs.synced)
}

func TestExecutorConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.store.FailConnect("slave", errors.New("connection refused"))
	h.store.Seed("master", "contacts", models.Record{"id": 1, "name": "Ann", "status": "A"})

	job, err := h.run(t)
	require.Error(t, err)

	var connErr *adapters.ConnectionError
	assert.ErrorAs(t, err, &connErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "connection refused")
	assert.Equal(t, int64(0), job.ProcessedRecords)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestExecutorUnknownDatasourceType(t *testing.T) {
	h := newHarness(t)
	h.configs.spec.Slave = &models.DataSource{Type: "oracle"}

	job, err := h.run(t)
	var cfgErr *adapters.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestExecutorRejectsFinishedJob(t *testing.T) {
	h := newHarness(t)
	h.store.Seed("master", "contacts", models.Record{"id": 1, "name": "Ann", "status": "A"})

	id := h.jobs.add(h.cfg.ID)
	_, err := h.executor.Run(context.Background(), id)
	require.NoError(t, err)

	job, err := h.executor.Run(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}
