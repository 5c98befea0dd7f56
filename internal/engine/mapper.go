package engine

import (
	"context"
	"fmt"

	"go-dbsync/internal/adapters"
	"go-dbsync/internal/models"
)

type mapping struct {
	models.FieldMapping
	transform *Transform
}

// FieldMapper translates records between master and slave columns. It only
// knows the active mappings; skip_sync mappings are dropped at construction.
type FieldMapper struct {
	mappings []*mapping
	byMaster map[string]*mapping
	bySlave  map[string]*mapping
	key      *mapping
}

// NewFieldMapper parses every transform once. More than one active key
// mapping is a configuration error.
func NewFieldMapper(fms []models.FieldMapping) (*FieldMapper, error) {
	m := &FieldMapper{
		byMaster: make(map[string]*mapping),
		bySlave:  make(map[string]*mapping),
	}
	for _, fm := range fms {
		if fm.SkipSync {
			continue
		}
		if fm.MasterColumn == "" || fm.SlaveColumn == "" {
			return nil, &adapters.ConfigurationError{Field: "field_mappings", Reason: "master_column and slave_column are required"}
		}
		mp := &mapping{FieldMapping: fm, transform: ParseTransform(fm.Transform)}
		if fm.IsKeyField {
			if m.key != nil {
				return nil, &adapters.ConfigurationError{
					Field:  "field_mappings",
					Reason: fmt.Sprintf("more than one key field (%s, %s)", m.key.MasterColumn, fm.MasterColumn),
				}
			}
			m.key = mp
		}
		m.mappings = append(m.mappings, mp)
		m.byMaster[fm.MasterColumn] = mp
		m.bySlave[fm.SlaveColumn] = mp
	}
	return m, nil
}

// MasterToSlave maps record into slave columns. Missing master columns map
// to nil before the transform runs.
func (m *FieldMapper) MasterToSlave(ctx context.Context, record models.Record) (models.Record, error) {
	out := make(models.Record, len(m.mappings))
	for _, mp := range m.mappings {
		v, err := mp.transform.Apply(ctx, record[mp.MasterColumn], record)
		if err != nil {
			return nil, fmt.Errorf("%s -> %s (%s): %w", mp.MasterColumn, mp.SlaveColumn, mp.transform, err)
		}
		out[mp.SlaveColumn] = v
	}
	return out, nil
}

// SlaveToMaster renames slave columns back to master columns. Transforms are
// not inverted, so the round trip is lossy.
func (m *FieldMapper) SlaveToMaster(record models.Record) models.Record {
	out := make(models.Record, len(record))
	for col, v := range record {
		if mp, ok := m.bySlave[col]; ok {
			out[mp.MasterColumn] = v
		}
	}
	return out
}

// FindConflicts lists, in mapping order, the master columns whose
// transformed value differs from the slave value. Key fields are never
// compared.
func (m *FieldMapper) FindConflicts(ctx context.Context, master, slave models.Record) ([]string, error) {
	var fields []string
	for _, mp := range m.mappings {
		if mp.IsKeyField {
			continue
		}
		mv, err := mp.transform.Apply(ctx, master[mp.MasterColumn], master)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", mp.MasterColumn, mp.transform, err)
		}
		if !ValuesEqual(mv, slave[mp.SlaveColumn]) {
			fields = append(fields, mp.MasterColumn)
		}
	}
	return fields, nil
}

// KeyValue returns the slave-side key for a master record: the key mapping's
// transform applied to its master column.
func (m *FieldMapper) KeyValue(ctx context.Context, master models.Record) (interface{}, error) {
	if m.key == nil {
		return nil, fmt.Errorf("no key mapping")
	}
	return m.key.transform.Apply(ctx, master[m.key.MasterColumn], master)
}

// KeyMapping returns the active key mapping, or nil.
func (m *FieldMapper) KeyMapping() *models.FieldMapping {
	if m.key == nil {
		return nil
	}
	fm := m.key.FieldMapping
	return &fm
}

// SlaveColumnFor returns the slave column mapped to masterColumn.
func (m *FieldMapper) SlaveColumnFor(masterColumn string) (string, bool) {
	mp, ok := m.byMaster[masterColumn]
	if !ok {
		return "", false
	}
	return mp.SlaveColumn, true
}

func (m *FieldMapper) MasterColumns() []string {
	cols := make([]string, len(m.mappings))
	for i, mp := range m.mappings {
		cols[i] = mp.MasterColumn
	}
	return cols
}

func (m *FieldMapper) SlaveColumns() []string {
	cols := make([]string, len(m.mappings))
	for i, mp := range m.mappings {
		cols[i] = mp.SlaveColumn
	}
	return cols
}
