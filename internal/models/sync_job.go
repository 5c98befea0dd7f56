package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SyncJob is one run of a SyncConfig. Counters only grow during a run and are
// kept on failure.
type SyncJob struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConfigID         primitive.ObjectID `json:"config_id" bson:"config_id"`
	Status           JobStatus          `json:"status" bson:"status"`
	StartedAt        *time.Time         `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	TotalRecords     int64              `json:"total_records" bson:"total_records"`
	ProcessedRecords int64              `json:"processed_records" bson:"processed_records"`
	InsertedRecords  int64              `json:"inserted_records" bson:"inserted_records"`
	UpdatedRecords   int64              `json:"updated_records" bson:"updated_records"`
	DeletedRecords   int64              `json:"deleted_records" bson:"deleted_records"`
	ConflictCount    int64              `json:"conflict_count" bson:"conflict_count"`
	ErrorCount       int64              `json:"error_count" bson:"error_count"`
	ErrorMessage     string             `json:"error_message,omitempty" bson:"error_message,omitempty"`
	TriggeredBy      string             `json:"triggered_by,omitempty" bson:"triggered_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}
