package adapters

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go-dbsync/internal/models"
)

// MemoryStore holds in-process tables grouped by database name. It backs
// the "memory" datasource type, used for dry runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	dbs        map[string]map[string]*memTable
	connectErr map[string]error
}

type memTable struct {
	pk   string
	rows []models.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dbs:        make(map[string]map[string]*memTable),
		connectErr: make(map[string]error),
	}
}

// CreateTable registers an empty table keyed by pk. Existing rows are kept.
func (s *MemoryStore) CreateTable(database, table, pk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(database, table, pk)
}

// Seed appends copies of rows to the table.
func (s *MemoryStore) Seed(database, table string, rows ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(database, table, "id")
	for _, r := range rows {
		t.rows = append(t.rows, copyRecord(r))
	}
}

// Rows returns copies of the rows of a table in insertion order.
func (s *MemoryStore) Rows(database, table string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.dbs[database][table]
	if !ok {
		return nil
	}
	out := make([]models.Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRecord(r)
	}
	return out
}

// FailConnect makes every connect to database fail with err. A nil err
// clears the failure.
func (s *MemoryStore) FailConnect(database string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.connectErr, database)
		return
	}
	s.connectErr[database] = err
}

// table returns the named table, creating it if needed. Callers hold s.mu.
func (s *MemoryStore) table(database, name, pk string) *memTable {
	db, ok := s.dbs[database]
	if !ok {
		db = make(map[string]*memTable)
		s.dbs[database] = db
	}
	t, ok := db[name]
	if !ok {
		t = &memTable{pk: pk}
		db[name] = t
	}
	return t
}

// MemoryAdapter is an Adapter over a MemoryStore database.
type MemoryAdapter struct {
	store *MemoryStore
	ep    Endpoint

	mu        sync.Mutex
	connected bool
}

func NewMemoryAdapter(store *MemoryStore, ep Endpoint) *MemoryAdapter {
	return &MemoryAdapter{store: store, ep: ep}
}

func (a *MemoryAdapter) Type() string { return models.DataSourceTypeMemory }

func (a *MemoryAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	a.store.mu.RLock()
	err := a.store.connectErr[a.ep.Database]
	a.store.mu.RUnlock()
	if err != nil {
		return a.ep.connErr("connect", err)
	}
	a.connected = true
	return nil
}

func (a *MemoryAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	return nil
}

func (a *MemoryAdapter) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return a.ep.connErr("query", errors.New("not connected"))
	}
	return nil
}

func (a *MemoryAdapter) lookup(table string) (*memTable, error) {
	t, ok := a.store.dbs[a.ep.Database][a.ep.table(table)]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return t, nil
}

func (a *MemoryAdapter) Tables(ctx context.Context) ([]string, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	names := make([]string, 0, len(a.store.dbs[a.ep.Database]))
	for name := range a.store.dbs[a.ep.Database] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Schema lists the key column first, then every other column seen in the rows.
func (a *MemoryAdapter) Schema(ctx context.Context, table string) ([]models.Column, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	t, err := a.lookup(table)
	if err != nil {
		return nil, err
	}

	types := map[string]string{t.pk: ""}
	for _, r := range t.rows {
		for k, v := range r {
			if cur, ok := types[k]; !ok || (cur == "" && v != nil) {
				types[k] = ""
				if v != nil {
					types[k] = fmt.Sprintf("%T", v)
				}
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		if k != t.pk {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	cols := []models.Column{{Name: t.pk, Type: types[t.pk], PrimaryKey: true}}
	for _, n := range names {
		cols = append(cols, models.Column{Name: n, Type: types[n], Nullable: true})
	}
	return cols, nil
}

func (a *MemoryAdapter) ReadRecords(ctx context.Context, req ReadRequest) ([]models.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	t, err := a.lookup(req.Table)
	if err != nil {
		return nil, err
	}

	clauses := ActiveClauses(req.Where)
	var matched []models.Record
	for _, r := range t.rows {
		if matchAll(r, clauses) {
			matched = append(matched, r)
		}
	}
	if req.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return compareValues(matched[i][req.OrderBy], matched[j][req.OrderBy]) < 0
		})
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	out := []models.Record{}
	for i := req.Offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, project(matched[i], req.Columns))
	}
	return out, nil
}

func (a *MemoryAdapter) ReadRecordByKey(ctx context.Context, table, keyColumn string, keyValue interface{}) (models.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	t, err := a.lookup(table)
	if err != nil {
		return nil, err
	}
	for _, r := range t.rows {
		if sameValue(r[keyColumn], keyValue) {
			return copyRecord(r), nil
		}
	}
	return nil, nil
}

func (a *MemoryAdapter) UpsertRecord(ctx context.Context, table string, record models.Record, keyColumn string) (models.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	key, ok := record[keyColumn]
	if !ok || key == nil {
		return nil, fmt.Errorf("record has no value for key column %s", keyColumn)
	}

	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	t := a.store.table(a.ep.Database, a.ep.table(table), keyColumn)
	for _, r := range t.rows {
		if sameValue(r[keyColumn], key) {
			for k, v := range record {
				r[k] = v
			}
			return copyRecord(r), nil
		}
	}
	stored := copyRecord(record)
	t.rows = append(t.rows, stored)
	return copyRecord(stored), nil
}

func (a *MemoryAdapter) DeleteRecord(ctx context.Context, table, keyColumn string, keyValue interface{}) (bool, error) {
	if err := a.check(); err != nil {
		return false, err
	}
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	t, err := a.lookup(table)
	if err != nil {
		return false, err
	}
	for i, r := range t.rows {
		if sameValue(r[keyColumn], keyValue) {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (a *MemoryAdapter) CountRecords(ctx context.Context, table string, where models.Filter) (int64, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	t, err := a.lookup(table)
	if err != nil {
		return 0, err
	}
	clauses := ActiveClauses(where)
	var n int64
	for _, r := range t.rows {
		if matchAll(r, clauses) {
			n++
		}
	}
	return n, nil
}

func matchAll(r models.Record, clauses models.Filter) bool {
	for _, c := range clauses {
		v := r[c.Field]
		switch c.Operator {
		case models.OpNotEqual:
			if sameValue(v, c.Value) {
				return false
			}
		case models.OpGreater:
			if v == nil || compareValues(v, c.Value) <= 0 {
				return false
			}
		case models.OpLess:
			if v == nil || compareValues(v, c.Value) >= 0 {
				return false
			}
		case models.OpContains:
			if v == nil || !strings.Contains(strings.ToLower(fmt.Sprint(v)), strings.ToLower(fmt.Sprint(c.Value))) {
				return false
			}
		default:
			if !sameValue(v, c.Value) {
				return false
			}
		}
	}
	return true
}

func project(r models.Record, columns []string) models.Record {
	if len(columns) == 0 {
		return copyRecord(r)
	}
	out := make(models.Record, len(columns))
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRecord(r models.Record) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sameValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues orders numbers numerically and everything else as text.
// nil sorts first.
func compareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
