package engine

import (
	"strconv"
	"strings"
	"time"

	"go-dbsync/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConflictResolver applies a config's conflict policy to records whose
// fields disagree.
type ConflictResolver struct {
	configID       primitive.ObjectID
	policy         models.ConflictPolicy
	masterTSColumn string
	slaveTSColumn  string
	mapper         *FieldMapper
	now            func() time.Time
}

func NewConflictResolver(cfg *models.SyncConfig, mapper *FieldMapper) *ConflictResolver {
	r := &ConflictResolver{
		configID:       cfg.ID,
		policy:         cfg.ConflictPolicy,
		masterTSColumn: cfg.TimestampColumn,
		slaveTSColumn:  cfg.SlaveTimestampColumn,
		mapper:         mapper,
		now:            time.Now,
	}
	if r.slaveTSColumn == "" && r.masterTSColumn != "" {
		if col, ok := mapper.SlaveColumnFor(r.masterTSColumn); ok {
			r.slaveTSColumn = col
		} else {
			r.slaveTSColumn = r.masterTSColumn
		}
	}
	return r
}

// Side names the record whose values win a conflict.
type Side int

const (
	SideMaster Side = iota
	SideSlave
)

// Winner decides which side's values the conflicting fields keep. When the
// policy cannot or must not decide it returns a *ManualResolution.
func (r *ConflictResolver) Winner(recordKey string, master, slave models.Record, fields []string) (Side, error) {
	switch r.policy {
	case models.ConflictPolicyMasterWins:
		return SideMaster, nil
	case models.ConflictPolicySlaveWins:
		return SideSlave, nil
	case models.ConflictPolicyNewestWins:
		mt, mok := parseTimestamp(master[r.masterTSColumn])
		st, sok := parseTimestamp(slave[r.slaveTSColumn])
		if r.masterTSColumn == "" || !mok || !sok {
			return SideMaster, r.manual(recordKey, master, slave, fields, "timestamps missing or unreadable")
		}
		if st.After(mt) {
			return SideSlave, nil
		}
		return SideMaster, nil
	case models.ConflictPolicyManual:
		return SideMaster, r.manual(recordKey, master, slave, fields, "manual resolution required")
	}
	return SideMaster, r.manual(recordKey, master, slave, fields, "unknown conflict policy "+string(r.policy))
}

// Resolve returns the winning record shaped like master.
func (r *ConflictResolver) Resolve(recordKey string, master, slave models.Record, fields []string) (models.Record, error) {
	side, err := r.Winner(recordKey, master, slave, fields)
	if err != nil {
		return nil, err
	}
	if side == SideSlave {
		return r.slaveWins(master, slave, fields), nil
	}
	return copyRecord(master), nil
}

// KeepSlaveValues overwrites the conflicting columns of a mapped slave
// record with the values already stored in slave. Stored values are final
// and must not pass through the master transforms again.
func (r *ConflictResolver) KeepSlaveValues(mapped, slave models.Record, fields []string) {
	for _, f := range fields {
		if col, ok := r.mapper.SlaveColumnFor(f); ok {
			mapped[col] = slave[col]
		}
	}
}

// slaveWins overwrites the conflicting master fields with the slave values.
func (r *ConflictResolver) slaveWins(master, slave models.Record, fields []string) models.Record {
	out := copyRecord(master)
	for _, f := range fields {
		if col, ok := r.mapper.SlaveColumnFor(f); ok {
			out[f] = slave[col]
		}
	}
	return out
}

func (r *ConflictResolver) manual(recordKey string, master, slave models.Record, fields []string, reason string) error {
	return &ManualResolution{
		RecordKey:         recordKey,
		MasterData:        master,
		SlaveData:         slave,
		ConflictingFields: fields,
		Reason:            reason,
	}
}

// CreateConflictRecord snapshots both sides for later review.
func (r *ConflictResolver) CreateConflictRecord(jobID primitive.ObjectID, recordKey string, master, slave models.Record, fields []string) *models.Conflict {
	return &models.Conflict{
		JobID:             jobID,
		ConfigID:          r.configID,
		RecordKey:         recordKey,
		MasterData:        copyRecord(master),
		SlaveData:         copyRecord(slave),
		ConflictingFields: append([]string(nil), fields...),
		ResolutionStatus:  models.ResolutionPending,
		CreatedAt:         r.now().UTC(),
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case primitive.DateTime:
		return t.Time(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return unixTime(f), true
		}
		return time.Time{}, false
	}
	if f, ok := toFloat(v); ok {
		return unixTime(f), true
	}
	return time.Time{}, false
}

func unixTime(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}

func copyRecord(r models.Record) models.Record {
	if r == nil {
		return nil
	}
	out := make(models.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
