package models

import "time"

// EngineLog is one persisted log line. JobID is set for lines emitted while
// a sync job runs.
type EngineLog struct {
	Message      string                 `bson:"message" json:"message"`
	Level        string                 `bson:"level" json:"level"`
	LogLevelId   int                    `bson:"log_level_id" json:"log_level_id"`
	JobID        string                 `bson:"job_id,omitempty" json:"job_id,omitempty"`
	ConfigID     string                 `bson:"config_id,omitempty" json:"config_id,omitempty"`
	Caller       string                 `bson:"caller,omitempty" json:"caller,omitempty"`
	Fields       map[string]interface{} `bson:"fields,omitempty" json:"fields,omitempty"`
	CreatedOnUtc time.Time              `bson:"created_on_utc" json:"created_on_utc"`
}
