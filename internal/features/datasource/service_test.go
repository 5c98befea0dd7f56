package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type mockDataSourceRepo struct {
	items   map[string]*models.DataSource
	updates []map[string]interface{}
}

func newMockDataSourceRepo() *mockDataSourceRepo {
	return &mockDataSourceRepo{items: make(map[string]*models.DataSource)}
}

func (m *mockDataSourceRepo) Create(ctx context.Context, ds *models.DataSource) error {
	ds.ID = primitive.NewObjectID()
	m.items[ds.ID.Hex()] = ds
	return nil
}

func (m *mockDataSourceRepo) Get(ctx context.Context, id string) (*models.DataSource, error) {
	ds, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *ds
	return &cp, nil
}

func (m *mockDataSourceRepo) List(ctx context.Context) ([]models.DataSource, error) {
	out := []models.DataSource{}
	for _, ds := range m.items {
		out = append(out, *ds)
	}
	return out, nil
}

func (m *mockDataSourceRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	ds, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	m.updates = append(m.updates, updates)
	if v, ok := updates["last_test_success"].(bool); ok {
		ds.LastTestSuccess = &v
	} else if _, ok := updates["last_test_success"]; ok {
		ds.LastTestSuccess = nil
	}
	if v, ok := updates["last_tested_at"].(time.Time); ok {
		ds.LastTestedAt = &v
	} else if _, ok := updates["last_tested_at"]; ok {
		ds.LastTestedAt = nil
	}
	if v, ok := updates["database"].(string); ok {
		ds.Database = v
	}
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
	out := []models.View{}
	for _, v := range m.items {
		if v.DataSourceID.Hex() == dataSourceID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *mockViewRepo) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	v, ok := m.items[id]
	if !ok {
		return ErrViewNotFound
	}
	if f, ok := updates["filters"].(models.Filter); ok {
		v.Filters = f
	}
	return nil
}

func (m *mockViewRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	return nil
}

type mockSchemaCache struct {
	items   map[string]*models.TableSchemaCache
	cleared int
}

func (m *mockSchemaCache) Get(ctx context.Context, dataSourceID primitive.ObjectID, table string) (*models.TableSchemaCache, error) {
	return m.items[dataSourceID.Hex()+"/"+table], nil
}

func (m *mockSchemaCache) Save(ctx context.Context, cache *models.TableSchemaCache) error {
	m.items[cache.DataSourceID.Hex()+"/"+cache.TableName] = cache
	return nil
}

func (m *mockSchemaCache) DeleteByDataSource(ctx context.Context, dataSourceID primitive.ObjectID) error {
	m.cleared++
	for k, v := range m.items {
		if v.DataSourceID == dataSourceID {
			delete(m.items, k)
		}
	}
	return nil
}

type fixture struct {
	svc     DataSourceService
	repo    *mockDataSourceRepo
	views   *mockViewRepo
	schemas *mockSchemaCache
	store   *adapters.MemoryStore
	ds      *models.DataSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := adapters.NewMemoryStore()
	store.CreateTable("crm", "contacts", "id")
	store.Seed("crm", "contacts",
		models.Record{"id": 1, "name": "Ada", "status": "active"},
		models.Record{"id": 2, "name": "Grace", "status": "inactive"},
		models.Record{"id": 3, "name": "Linus", "status": "active"},
	)

	f := &fixture{
		repo:    newMockDataSourceRepo(),
		views:   &mockViewRepo{items: make(map[string]*models.View)},
		schemas: &mockSchemaCache{items: make(map[string]*models.TableSchemaCache)},
		store:   store,
	}
	factory := adapters.NewFactory(nil, zap.NewNop(), adapters.WithMemoryStore(store), adapters.WithoutBreakers())
	f.svc = NewDataSourceService(f.repo, f.views, f.schemas, factory, zap.NewNop())

	f.ds = &models.DataSource{Name: "CRM", Type: "memory", Database: "crm"}
	require.NoError(t, f.svc.CreateDataSource(context.Background(), f.ds))
	return f
}

func TestCreateDataSourceValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		ds      models.DataSource
		wantErr bool
		want    string
	}{
		{"Alias Normalized", models.DataSource{Name: "PG", Type: "postgres"}, false, models.DataSourceTypePostgreSQL},
		{"Missing Name", models.DataSource{Type: "mysql"}, true, ""},
		{"Unknown Type", models.DataSource{Name: "X", Type: "oracle"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := tt.ds
			err := f.svc.CreateDataSource(context.Background(), &ds)
			if tt.wantErr {
				var cfgErr *adapters.ConfigurationError
				assert.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ds.Type)
		})
	}
}

func TestGetDataSourceNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetDataSource(context.Background(), primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestTestConnectionRecordsOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.TestConnection(ctx, f.ds.ID.Hex())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"contacts"}, result.Tables)

	stored, _ := f.repo.Get(ctx, f.ds.ID.Hex())
	require.NotNil(t, stored.LastTestSuccess)
	assert.True(t, *stored.LastTestSuccess)
	assert.NotNil(t, stored.LastTestedAt)

	f.store.FailConnect("crm", errors.New("connection refused"))
	result, err = f.svc.TestConnection(ctx, f.ds.ID.Hex())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	stored, _ = f.repo.Get(ctx, f.ds.ID.Hex())
	require.NotNil(t, stored.LastTestSuccess)
	assert.False(t, *stored.LastTestSuccess)
}

func TestUpdateConnectionFieldClearsTestState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TestConnection(ctx, f.ds.ID.Hex())
	require.NoError(t, err)
	_, err = f.svc.GetSchema(ctx, f.ds.ID.Hex(), "contacts", false)
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateDataSource(ctx, f.ds.ID.Hex(), map[string]interface{}{"description": "primary"}))
	stored, _ := f.repo.Get(ctx, f.ds.ID.Hex())
	assert.NotNil(t, stored.LastTestSuccess)
	assert.Equal(t, 0, f.schemas.cleared)

	require.NoError(t, f.svc.UpdateDataSource(ctx, f.ds.ID.Hex(), map[string]interface{}{"database": "crm2", "created_at": "ignored"}))
	stored, _ = f.repo.Get(ctx, f.ds.ID.Hex())
	assert.Nil(t, stored.LastTestSuccess)
	assert.Nil(t, stored.LastTestedAt)
	assert.Equal(t, 1, f.schemas.cleared)

	last := f.repo.updates[len(f.repo.updates)-1]
	assert.NotContains(t, last, "created_at")
}

func TestGetSchemaUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.ds.ID.Hex()

	first, err := f.svc.GetSchema(ctx, id, "contacts", false)
	require.NoError(t, err)
	require.NotEmpty(t, first.Columns)

	// A cache hit never reaches the datasource.
	f.store.FailConnect("crm", errors.New("connection refused"))
	cached, err := f.svc.GetSchema(ctx, id, "contacts", false)
	require.NoError(t, err)
	assert.Equal(t, first.Columns, cached.Columns)

	_, err = f.svc.GetSchema(ctx, id, "contacts", true)
	assert.Error(t, err)
}

func TestSampleData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, err := f.svc.SampleData(ctx, f.ds.ID.Hex(), SampleDataRequest{Table: "contacts", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, data.Records, 1)
	assert.Equal(t, int64(3), data.Total)

	data, err = f.svc.SampleData(ctx, f.ds.ID.Hex(), SampleDataRequest{
		Table:   "contacts",
		Filters: models.Filter{{Field: "status", Operator: "==", Value: "active"}},
	})
	require.NoError(t, err)
	assert.Len(t, data.Records, 2)
	assert.Equal(t, int64(2), data.Total)
}

func TestViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view := &models.View{
		Name:         "Active",
		DataSourceID: f.ds.ID,
		TargetTable:  "contacts",
		Filters:      models.Filter{{Field: "status", Operator: "eq", Value: "active"}},
	}
	require.NoError(t, f.svc.CreateView(ctx, view))
	assert.Equal(t, "==", view.Filters[0].Operator)

	views, err := f.svc.ListViews(ctx, f.ds.ID.Hex())
	require.NoError(t, err)
	assert.Len(t, views, 1)

	page, err := f.svc.ViewRecords(ctx, view.ID.Hex(), 1, 1)
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, int64(2), page.TotalRecords)
	assert.Equal(t, int64(2), page.TotalPages)
	assert.Equal(t, "CRM", page.DataSourceName)

	count, err := f.svc.CountView(ctx, view.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.TotalRecords)

	err = f.svc.UpdateView(ctx, view.ID.Hex(), map[string]interface{}{
		"filters": []interface{}{map[string]interface{}{"field": "status", "operator": "bogus", "value": "x"}},
	})
	var cfgErr *adapters.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	require.NoError(t, f.svc.DeleteView(ctx, view.ID.Hex()))
	_, err = f.svc.GetView(ctx, view.ID.Hex())
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestCreateViewRequiresDataSource(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateView(context.Background(), &models.View{
		Name:         "Orphan",
		DataSourceID: primitive.NewObjectID(),
		TargetTable:  "contacts",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
