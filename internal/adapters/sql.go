package adapters

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go-dbsync/internal/models"

	"go.uber.org/zap"
)

// dialect captures what differs between the SQL vendors.
type dialect interface {
	vendor() string
	driverName() string
	dsn(ep Endpoint) (string, error)
	configure(ctx context.Context, db *sql.DB, ep Endpoint) error
	quote(ident string) string
	quoteTable(ep Endpoint, table string) string
	placeholder(n int) string
	containsExpr(column, placeholder string) string
	upsertSuffix(key string, update []string) string
	tables(ctx context.Context, db *sql.DB, ep Endpoint) ([]string, error)
	schema(ctx context.Context, db *sql.DB, ep Endpoint, table string) ([]models.Column, error)
}

// sqlAdapter implements Adapter on database/sql for every dialect.
type sqlAdapter struct {
	d        dialect
	ep       Endpoint
	breakers *breakerSet
	logger   *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

func newSQLAdapter(d dialect, ep Endpoint, breakers *breakerSet, logger *zap.Logger) *sqlAdapter {
	return &sqlAdapter{d: d, ep: ep, breakers: breakers, logger: logger}
}

func (a *sqlAdapter) Type() string { return a.d.vendor() }

func (a *sqlAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}

	dsn, err := a.d.dsn(a.ep)
	if err != nil {
		return err
	}
	db, err := sql.Open(a.d.driverName(), dsn)
	if err != nil {
		return a.ep.connErr("open", err)
	}

	err = a.breakers.guard(a.ep, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return a.ep.connErr("connect", err)
	}
	if err := a.d.configure(ctx, db, a.ep); err != nil {
		db.Close()
		return a.ep.connErr("configure", err)
	}

	a.db = db
	a.logger.Debug("Connected", zap.String("host", a.ep.Host), zap.String("database", a.ep.Database))
	return nil
}

func (a *sqlAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *sqlAdapter) conn() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil, a.ep.connErr("query", errors.New("database connection not established"))
	}
	return a.db, nil
}

func (a *sqlAdapter) Tables(ctx context.Context) ([]string, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	tables, err := a.d.tables(ctx, db, a.ep)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (a *sqlAdapter) Schema(ctx context.Context, table string) ([]models.Column, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	cols, err := a.d.schema(ctx, db, a.ep, a.ep.table(table))
	if err != nil {
		return nil, fmt.Errorf("failed to get schema for %s: %w", table, err)
	}
	return cols, nil
}

func (a *sqlAdapter) ReadRecords(ctx context.Context, req ReadRequest) ([]models.Record, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	query, args := a.buildSelect(req)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	data, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to process query results: %w", err)
	}
	return data, nil
}

func (a *sqlAdapter) ReadRecordByKey(ctx context.Context, table, keyColumn string, keyValue interface{}) (models.Record, error) {
	records, err := a.ReadRecords(ctx, ReadRequest{
		Table: table,
		Where: models.Filter{{Field: keyColumn, Operator: models.OpEqual, Value: keyValue}},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (a *sqlAdapter) UpsertRecord(ctx context.Context, table string, record models.Record, keyColumn string) (models.Record, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	key, ok := record[keyColumn]
	if !ok || key == nil {
		return nil, fmt.Errorf("record has no value for key column %s", keyColumn)
	}

	query, args := a.buildUpsert(table, record, keyColumn)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return a.ReadRecordByKey(ctx, table, keyColumn, key)
}

func (a *sqlAdapter) DeleteRecord(ctx context.Context, table, keyColumn string, keyValue interface{}) (bool, error) {
	db, err := a.conn()
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		a.d.quoteTable(a.ep, a.ep.table(table)), a.d.quote(keyColumn), a.d.placeholder(1))

	res, err := db.ExecContext(ctx, query, bindValue(keyValue))
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *sqlAdapter) CountRecords(ctx context.Context, table string, where models.Filter) (int64, error) {
	db, err := a.conn()
	if err != nil {
		return 0, err
	}
	cond, args := a.buildWhere(where, 1)
	query := "SELECT COUNT(*) FROM " + a.d.quoteTable(a.ep, a.ep.table(table)) + cond

	var n int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// buildSelect constructs the paged SELECT for req.
func (a *sqlAdapter) buildSelect(req ReadRequest) (string, []interface{}) {
	var query strings.Builder

	query.WriteString("SELECT ")
	if len(req.Columns) > 0 {
		cols := make([]string, len(req.Columns))
		for i, c := range req.Columns {
			cols[i] = a.d.quote(c)
		}
		query.WriteString(strings.Join(cols, ", "))
	} else {
		query.WriteString("*")
	}
	query.WriteString(" FROM ")
	query.WriteString(a.d.quoteTable(a.ep, a.ep.table(req.Table)))

	cond, args := a.buildWhere(req.Where, 1)
	query.WriteString(cond)

	if req.OrderBy != "" {
		query.WriteString(" ORDER BY ")
		query.WriteString(a.d.quote(req.OrderBy))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	query.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if req.Offset > 0 {
		query.WriteString(fmt.Sprintf(" OFFSET %d", req.Offset))
	}
	return query.String(), args
}

// buildWhere renders the active clauses of f, numbering placeholders from start.
func (a *sqlAdapter) buildWhere(f models.Filter, start int) (string, []interface{}) {
	clauses := ActiveClauses(f)
	if len(clauses) == 0 {
		return "", nil
	}

	conditions := make([]string, 0, len(clauses))
	args := make([]interface{}, 0, len(clauses))
	n := start
	for _, c := range clauses {
		col := a.d.quote(c.Field)
		ph := a.d.placeholder(n)
		switch c.Operator {
		case models.OpContains:
			conditions = append(conditions, a.d.containsExpr(col, ph))
			args = append(args, likePattern(c.Value))
		case models.OpNotEqual:
			conditions = append(conditions, fmt.Sprintf("%s <> %s", col, ph))
			args = append(args, bindValue(c.Value))
		case models.OpGreater, models.OpLess:
			conditions = append(conditions, fmt.Sprintf("%s %s %s", col, c.Operator, ph))
			args = append(args, bindValue(c.Value))
		default:
			conditions = append(conditions, fmt.Sprintf("%s = %s", col, ph))
			args = append(args, bindValue(c.Value))
		}
		n++
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// buildUpsert renders an INSERT that updates every non-key column on key
// collision. Columns are emitted in sorted order.
func (a *sqlAdapter) buildUpsert(table string, record models.Record, keyColumn string) (string, []interface{}) {
	cols := make([]string, 0, len(record))
	for c := range record {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	phs := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	var update []string
	for i, c := range cols {
		quoted[i] = a.d.quote(c)
		phs[i] = a.d.placeholder(i + 1)
		args[i] = bindValue(record[c])
		if c != keyColumn {
			update = append(update, c)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
		a.d.quoteTable(a.ep, a.ep.table(table)),
		strings.Join(quoted, ", "),
		strings.Join(phs, ", "),
		a.d.upsertSuffix(keyColumn, update))
	return query, args
}

// bindValue stores maps and slices as JSON text.
func bindValue(v interface{}) interface{} {
	switch v.(type) {
	case map[string]interface{}, []interface{}, []string, []map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return v
}

// rowsToMaps converts rows into records, turning raw bytes into strings.
func rowsToMaps(rows *sql.Rows) ([]models.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []models.Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(models.Record, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC()
			default:
				row[col] = v
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
