package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ResolutionStatus string

const (
	ResolutionPending    ResolutionStatus = "pending"
	ResolutionResolved   ResolutionStatus = "resolved"
	ResolutionMasterKept ResolutionStatus = "master_kept"
	ResolutionSlaveKept  ResolutionStatus = "slave_kept"
	ResolutionDismissed  ResolutionStatus = "dismissed"
)

// Conflict snapshots both sides of a record that needs a human decision.
type Conflict struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	JobID             primitive.ObjectID `json:"job_id" bson:"job_id"`
	ConfigID          primitive.ObjectID `json:"config_id,omitempty" bson:"config_id,omitempty"`
	RecordKey         string             `json:"record_key" bson:"record_key"`
	MasterData        Record             `json:"master_data" bson:"master_data"`
	SlaveData         Record             `json:"slave_data" bson:"slave_data"`
	ConflictingFields []string           `json:"conflicting_fields" bson:"conflicting_fields"`
	ResolutionStatus  ResolutionStatus   `json:"resolution_status" bson:"resolution_status"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
}

// Valid reports whether s is a known resolution status.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case ResolutionPending, ResolutionResolved, ResolutionMasterKept, ResolutionSlaveKept, ResolutionDismissed:
		return true
	}
	return false
}
