package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldMapping binds one master column to one slave column.
type FieldMapping struct {
	MasterColumn string `json:"master_column" bson:"master_column"`
	SlaveColumn  string `json:"slave_column" bson:"slave_column"`
	Transform    string `json:"transform,omitempty" bson:"transform,omitempty"`
	SkipSync     bool   `json:"skip_sync" bson:"skip_sync"`
	IsKeyField   bool   `json:"is_key_field" bson:"is_key_field"`
}

type ConflictPolicy string

const (
	ConflictPolicyMasterWins ConflictPolicy = "master_wins"
	ConflictPolicySlaveWins  ConflictPolicy = "slave_wins"
	ConflictPolicyNewestWins ConflictPolicy = "newest_wins"
	ConflictPolicyManual     ConflictPolicy = "manual"
)

// DefaultBatchSize is used when a config does not set one.
const DefaultBatchSize = 100

type SyncConfig struct {
	ID                 primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	Name               string              `json:"name" bson:"name"`
	Description        string              `json:"description,omitempty" bson:"description,omitempty"`
	MasterDataSourceID primitive.ObjectID  `json:"master_datasource_id" bson:"master_datasource_id"`
	MasterTable        string              `json:"master_table" bson:"master_table"`
	MasterPKColumn     string              `json:"master_pk_column" bson:"master_pk_column"`
	MasterViewID       *primitive.ObjectID `json:"master_view_id,omitempty" bson:"master_view_id,omitempty"`
	SlaveDataSourceID  primitive.ObjectID  `json:"slave_datasource_id" bson:"slave_datasource_id"`
	SlaveTable         string              `json:"slave_table" bson:"slave_table"`
	SlavePKColumn      string              `json:"slave_pk_column" bson:"slave_pk_column"`
	SlaveViewID        *primitive.ObjectID `json:"slave_view_id,omitempty" bson:"slave_view_id,omitempty"`
	FieldMappings      []FieldMapping      `json:"field_mappings" bson:"field_mappings"`
	BatchSize          int                 `json:"batch_size" bson:"batch_size"`
	SyncDeletes        bool                `json:"sync_deletes" bson:"sync_deletes"`
	ConflictPolicy     ConflictPolicy      `json:"conflict_policy" bson:"conflict_policy"`

	// TimestampColumn is the master column compared by newest_wins.
	// SlaveTimestampColumn defaults to the column it is mapped to.
	TimestampColumn      string     `json:"timestamp_column,omitempty" bson:"timestamp_column,omitempty"`
	SlaveTimestampColumn string     `json:"slave_timestamp_column,omitempty" bson:"slave_timestamp_column,omitempty"`
	Schedule             string     `json:"schedule,omitempty" bson:"schedule,omitempty"` // cron expression, empty = manual trigger only
	IsActive             bool       `json:"is_active" bson:"is_active"`
	LastSyncAt           *time.Time `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" bson:"updated_at"`
}

// EffectiveBatchSize returns BatchSize or DefaultBatchSize when unset.
func (c *SyncConfig) EffectiveBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}
