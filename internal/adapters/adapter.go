package adapters

import (
	"context"
	"strings"

	"go-dbsync/internal/models"

	"go.uber.org/zap"
)

// DefaultReadLimit is applied when a read request does not set a limit.
const DefaultReadLimit = 100

// ReadRequest describes one page of records.
type ReadRequest struct {
	Table   string
	Columns []string // nil = all columns
	Where   models.Filter
	OrderBy string // optional; adapters without native ordering ignore it
	Limit   int
	Offset  int
}

// Adapter gives uniform CRUD and schema access to one datastore.
type Adapter interface {
	// Connect establishes the connection. Calling it twice is a no-op.
	Connect(ctx context.Context) error

	// Disconnect releases the connection. A never-connected adapter is a no-op.
	Disconnect(ctx context.Context) error

	// Tables lists available tables (collections for document stores).
	Tables(ctx context.Context) ([]string, error)

	// Schema describes the columns of a table in storage order.
	Schema(ctx context.Context, table string) ([]models.Column, error)

	// ReadRecords returns one page of records matching req.Where.
	ReadRecords(ctx context.Context, req ReadRequest) ([]models.Record, error)

	// ReadRecordByKey returns the record whose keyColumn equals keyValue, or nil.
	ReadRecordByKey(ctx context.Context, table, keyColumn string, keyValue interface{}) (models.Record, error)

	// UpsertRecord inserts the record or updates the row matching keyColumn,
	// returning the row as stored.
	UpsertRecord(ctx context.Context, table string, record models.Record, keyColumn string) (models.Record, error)

	// DeleteRecord removes the row matching keyColumn. Reports whether a row
	// was found and deleted.
	DeleteRecord(ctx context.Context, table, keyColumn string, keyValue interface{}) (bool, error)

	// CountRecords counts rows matching where.
	CountRecords(ctx context.Context, table string, where models.Filter) (int64, error)

	// Type returns the datastore vendor.
	Type() string
}

// Endpoint is a datasource with its secrets resolved, ready to dial.
type Endpoint struct {
	Vendor      string
	Host        string
	Port        int
	Database    string
	Username    string
	Password    string
	APIURL      string
	APIKey      string
	TablePrefix string
	Extra       map[string]interface{}
}

// table applies the configured prefix unless name already carries it.
func (ep Endpoint) table(name string) string {
	if ep.TablePrefix == "" || strings.HasPrefix(name, ep.TablePrefix) {
		return name
	}
	return ep.TablePrefix + name
}

func (ep Endpoint) extraString(key, fallback string) string {
	if v, ok := ep.Extra[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (ep Endpoint) connErr(op string, err error) error {
	return &ConnectionError{Vendor: ep.Vendor, Host: ep.Host, Port: ep.Port, Database: ep.Database, Op: op, Err: err}
}

// Use connects a, runs fn and always disconnects, whatever fn returns.
func Use(ctx context.Context, a Adapter, logger *zap.Logger, fn func(Adapter) error) (err error) {
	if err := a.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if derr := a.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			logger.Warn("Failed to disconnect adapter", zap.String("type", a.Type()), zap.Error(derr))
		}
	}()
	return fn(a)
}

// TestResult is the outcome of a connection check.
type TestResult struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Tables     []string `json:"tables,omitempty"`
	Error      string   `json:"error,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// TestConnection connects, lists tables and disconnects. Failures are
// reported in the result, never returned.
func TestConnection(ctx context.Context, a Adapter, logger *zap.Logger) TestResult {
	var tables []string
	err := Use(ctx, a, logger, func(a Adapter) error {
		var err error
		tables, err = a.Tables(ctx)
		return err
	})
	if err != nil {
		logger.Error("Connection test failed", zap.String("type", a.Type()), zap.Error(err))
		return TestResult{
			Success:    false,
			Message:    "Connection failed",
			Error:      err.Error(),
			Suggestion: Suggest(err),
		}
	}
	return TestResult{Success: true, Message: "Connection successful", Tables: tables}
}
