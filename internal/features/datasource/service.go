package datasource

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

// AdapterFactory builds an unconnected adapter for a datasource.
type AdapterFactory interface {
	New(ctx context.Context, ds *models.DataSource) (adapters.Adapter, error)
}

type DataSourceService interface {
	CreateDataSource(ctx context.Context, ds *models.DataSource) error
	GetDataSource(ctx context.Context, id string) (*models.DataSource, error)
	ListDataSources(ctx context.Context) ([]models.DataSource, error)
	UpdateDataSource(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteDataSource(ctx context.Context, id string) error

	TestConnection(ctx context.Context, id string) (*adapters.TestResult, error)
	ListTables(ctx context.Context, id string) ([]string, error)
	GetSchema(ctx context.Context, id, table string, refresh bool) (*models.TableSchemaCache, error)
	SampleData(ctx context.Context, id string, req SampleDataRequest) (*SampleData, error)

	CreateView(ctx context.Context, view *models.View) error
	GetView(ctx context.Context, id string) (*models.View, error)
	ListViews(ctx context.Context, dataSourceID string) ([]models.View, error)
	UpdateView(ctx context.Context, id string, updates map[string]interface{}) error
	DeleteView(ctx context.Context, id string) error
	ViewRecords(ctx context.Context, viewID string, page, limit int) (*ViewPage, error)
	CountView(ctx context.Context, viewID string) (*ViewCount, error)
}

type DataSourceServiceImpl struct {
	repo    DataSourceRepository
	views   ViewRepository
	schemas SchemaCacheRepository
	factory AdapterFactory
	logger  *zap.Logger
	now     func() time.Time
}

func NewDataSourceService(
	repo DataSourceRepository,
	views ViewRepository,
	schemas SchemaCacheRepository,
	factory AdapterFactory,
	logger *zap.Logger,
) DataSourceService {
	return &DataSourceServiceImpl{
		repo:    repo,
		views:   views,
		schemas: schemas,
		factory: factory,
		logger:  logger.Named("datasource"),
		now:     time.Now,
	}
}

// immutableFields are never accepted from an update body.
var immutableFields = []string{"_id", "id", "created_at", "updated_at", "last_tested_at", "last_test_success"}

func (s *DataSourceServiceImpl) CreateDataSource(ctx context.Context, ds *models.DataSource) error {
	if ds.Name == "" {
		return &adapters.ConfigurationError{Field: "name", Reason: "is required"}
	}
	kind, ok := adapters.NormalizeType(ds.Type)
	if !ok {
		return &adapters.ConfigurationError{Field: "type", Reason: fmt.Sprintf("unsupported datasource type %q", ds.Type)}
	}
	ds.Type = kind
	ds.LastTestedAt = nil
	ds.LastTestSuccess = nil

	if err := s.repo.Create(ctx, ds); err != nil {
		return err
	}
	s.logger.Info("Datasource created", zap.String("datasource_id", ds.ID.Hex()), zap.String("type", ds.Type))
	return nil
}

func (s *DataSourceServiceImpl) GetDataSource(ctx context.Context, id string) (*models.DataSource, error) {
	ds, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, ErrNotFound
	}
	return ds, nil
}

func (s *DataSourceServiceImpl) ListDataSources(ctx context.Context) ([]models.DataSource, error) {
	return s.repo.List(ctx)
}

// UpdateDataSource applies a partial update. Changing any connection field
// clears the last connection test and the cached schemas.
func (s *DataSourceServiceImpl) UpdateDataSource(ctx context.Context, id string, updates map[string]interface{}) error {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return err
	}

	for _, f := range immutableFields {
		delete(updates, f)
	}
	if len(updates) == 0 {
		return nil
	}

	if raw, ok := updates["type"]; ok {
		t, _ := raw.(string)
		kind, ok := adapters.NormalizeType(t)
		if !ok {
			return &adapters.ConfigurationError{Field: "type", Reason: fmt.Sprintf("unsupported datasource type %q", t)}
		}
		updates["type"] = kind
	}

	connectionChanged := false
	for _, f := range models.ConnectionFields {
		if _, ok := updates[f]; ok {
			connectionChanged = true
			break
		}
	}
	if connectionChanged {
		updates["last_tested_at"] = nil
		updates["last_test_success"] = nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return err
	}

	if connectionChanged {
		if err := s.schemas.DeleteByDataSource(ctx, ds.ID); err != nil {
			s.logger.Warn("Failed to clear schema cache", zap.String("datasource_id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *DataSourceServiceImpl) DeleteDataSource(ctx context.Context, id string) error {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.schemas.DeleteByDataSource(ctx, ds.ID); err != nil {
		s.logger.Warn("Failed to clear schema cache", zap.String("datasource_id", id), zap.Error(err))
	}
	return nil
}

// TestConnection connects, lists tables and records the outcome on the
// datasource. A failed test is a result, not an error.
func (s *DataSourceServiceImpl) TestConnection(ctx context.Context, id string) (*adapters.TestResult, error) {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return nil, err
	}

	var result adapters.TestResult
	a, err := s.factory.New(ctx, ds)
	if err != nil {
		result = adapters.TestResult{
			Success:    false,
			Message:    "Connection failed",
			Error:      err.Error(),
			Suggestion: adapters.Suggest(err),
		}
	} else {
		result = adapters.TestConnection(ctx, a, s.logger)
	}

	success := result.Success
	if err := s.repo.Update(ctx, id, map[string]interface{}{
		"last_tested_at":    s.now().UTC(),
		"last_test_success": success,
	}); err != nil {
		s.logger.Warn("Failed to record connection test", zap.String("datasource_id", id), zap.Error(err))
	}
	return &result, nil
}

func (s *DataSourceServiceImpl) ListTables(ctx context.Context, id string) ([]string, error) {
	var tables []string
	err := s.withAdapter(ctx, id, func(_ *models.DataSource, a adapters.Adapter) error {
		var err error
		tables, err = a.Tables(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// GetSchema serves the cached schema unless refresh is set or nothing is
// cached yet.
func (s *DataSourceServiceImpl) GetSchema(ctx context.Context, id, table string, refresh bool) (*models.TableSchemaCache, error) {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return nil, err
	}

	if !refresh {
		cached, err := s.schemas.Get(ctx, ds.ID, table)
		if err != nil {
			s.logger.Warn("Schema cache lookup failed", zap.String("datasource_id", id), zap.String("table", table), zap.Error(err))
		} else if cached != nil {
			s.logger.Debug("Schema cache hit", zap.String("datasource_id", id), zap.String("table", table))
			return cached, nil
		}
	}

	var columns []models.Column
	err = s.use(ctx, ds, func(a adapters.Adapter) error {
		var err error
		columns, err = a.Schema(ctx, table)
		return err
	})
	if err != nil {
		return nil, err
	}

	cache := &models.TableSchemaCache{
		DataSourceID: ds.ID,
		TableName:    table,
		Columns:      columns,
		FetchedAt:    s.now().UTC(),
	}
	if err := s.schemas.Save(ctx, cache); err != nil {
		s.logger.Warn("Failed to cache schema", zap.String("datasource_id", id), zap.String("table", table), zap.Error(err))
	}
	s.logger.Info("Schema fetched", zap.String("datasource_id", id), zap.String("table", table), zap.Int("columns", len(columns)))
	return cache, nil
}

// SampleData returns the first rows of a table. Total is never lower than
// the number of rows returned.
func (s *DataSourceServiceImpl) SampleData(ctx context.Context, id string, req SampleDataRequest) (*SampleData, error) {
	if req.Limit <= 0 {
		req.Limit = defaultSampleLimit
	}
	where, err := adapters.ParseFilter(req.Filters)
	if err != nil {
		return nil, err
	}

	out := &SampleData{}
	err = s.withAdapter(ctx, id, func(_ *models.DataSource, a adapters.Adapter) error {
		rows, err := a.ReadRecords(ctx, adapters.ReadRequest{Table: req.Table, Where: where, Limit: req.Limit})
		if err != nil {
			return err
		}
		total, err := a.CountRecords(ctx, req.Table, where)
		if err != nil {
			return err
		}
		out.Records = rows
		out.Total = max(total, int64(len(rows)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = []models.Record{}
	}
	return out, nil
}

func (s *DataSourceServiceImpl) CreateView(ctx context.Context, view *models.View) error {
	if view.Name == "" {
		return &adapters.ConfigurationError{Field: "name", Reason: "is required"}
	}
	if view.TargetTable == "" {
		return &adapters.ConfigurationError{Field: "target_table", Reason: "is required"}
	}
	if _, err := s.GetDataSource(ctx, view.DataSourceID.Hex()); err != nil {
		return err
	}
	filters, err := adapters.ParseFilter(view.Filters)
	if err != nil {
		return err
	}
	view.Filters = filters
	return s.views.Create(ctx, view)
}

func (s *DataSourceServiceImpl) GetView(ctx context.Context, id string) (*models.View, error) {
	view, err := s.views.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrViewNotFound
	}
	return view, nil
}

func (s *DataSourceServiceImpl) ListViews(ctx context.Context, dataSourceID string) ([]models.View, error) {
	return s.views.ListByDataSource(ctx, dataSourceID)
}

func (s *DataSourceServiceImpl) UpdateView(ctx context.Context, id string, updates map[string]interface{}) error {
	if _, err := s.GetView(ctx, id); err != nil {
		return err
	}
	for _, f := range []string{"_id", "id", "datasource_id", "created_at", "updated_at"} {
		delete(updates, f)
	}
	if raw, ok := updates["filters"]; ok {
		filters, err := adapters.ParseFilter(raw)
		if err != nil {
			return err
		}
		updates["filters"] = filters
	}
	if len(updates) == 0 {
		return nil
	}
	return s.views.Update(ctx, id, updates)
}

func (s *DataSourceServiceImpl) DeleteView(ctx context.Context, id string) error {
	if _, err := s.GetView(ctx, id); err != nil {
		return err
	}
	return s.views.Delete(ctx, id)
}

// ViewRecords pages through the records a view matches. Pages are 1-based
// and limit is capped at 100.
func (s *DataSourceServiceImpl) ViewRecords(ctx context.Context, viewID string, page, limit int) (*ViewPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultSampleLimit
	}
	limit = min(limit, maxPageLimit)
	offset := (page - 1) * limit

	view, err := s.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}

	out := &ViewPage{CurrentPage: page, PerPage: limit, ViewName: view.Name, TargetTable: view.TargetTable}
	err = s.withAdapter(ctx, view.DataSourceID.Hex(), func(ds *models.DataSource, a adapters.Adapter) error {
		out.DataSourceName = ds.Name
		rows, err := a.ReadRecords(ctx, adapters.ReadRequest{
			Table:   view.TargetTable,
			Columns: view.VisibleColumns,
			Where:   view.Filters,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return err
		}
		total, err := a.CountRecords(ctx, view.TargetTable, view.Filters)
		if err != nil {
			return err
		}
		out.Records = rows
		out.TotalRecords = max(total, int64(len(rows)+offset))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = []models.Record{}
	}
	out.TotalPages = (out.TotalRecords + int64(limit) - 1) / int64(limit)
	out.TimestampUTC = s.now().UTC()
	return out, nil
}

func (s *DataSourceServiceImpl) CountView(ctx context.Context, viewID string) (*ViewCount, error) {
	view, err := s.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}

	out := &ViewCount{ViewID: viewID, ViewName: view.Name, TargetTable: view.TargetTable}
	err = s.withAdapter(ctx, view.DataSourceID.Hex(), func(ds *models.DataSource, a adapters.Adapter) error {
		out.DataSourceName = ds.Name
		total, err := a.CountRecords(ctx, view.TargetTable, view.Filters)
		out.TotalRecords = total
		return err
	})
	if err != nil {
		return nil, err
	}
	out.TimestampUTC = s.now().UTC()
	return out, nil
}

func (s *DataSourceServiceImpl) withAdapter(ctx context.Context, id string, fn func(*models.DataSource, adapters.Adapter) error) error {
	ds, err := s.GetDataSource(ctx, id)
	if err != nil {
		return err
	}
	return s.use(ctx, ds, func(a adapters.Adapter) error { return fn(ds, a) })
}

func (s *DataSourceServiceImpl) use(ctx context.Context, ds *models.DataSource, fn func(adapters.Adapter) error) error {
	a, err := s.factory.New(ctx, ds)
	if err != nil {
		return err
	}
	return adapters.Use(ctx, a, s.logger, fn)
}

// IsNotFound reports whether err means a missing datasource or view.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrViewNotFound) || errors.Is(err, primitive.ErrInvalidHex)
}
