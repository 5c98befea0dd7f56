package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// View is a named, filtered projection of one table on one datasource.
type View struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name           string             `json:"name" bson:"name"`
	Description    string             `json:"description,omitempty" bson:"description,omitempty"`
	DataSourceID   primitive.ObjectID `json:"datasource_id" bson:"datasource_id"`
	TargetTable    string             `json:"target_table" bson:"target_table"`
	Filters        Filter             `json:"filters" bson:"filters"`
	VisibleColumns []string           `json:"visible_columns,omitempty" bson:"visible_columns,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

// TableSchemaCache stores a fetched table schema so the UI does not have to
// reach the datasource on every load.
type TableSchemaCache struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DataSourceID primitive.ObjectID `json:"datasource_id" bson:"datasource_id"`
	TableName    string             `json:"table_name" bson:"table_name"`
	Columns      []Column           `json:"columns" bson:"columns"`
	FetchedAt    time.Time          `json:"fetched_at" bson:"fetched_at"`
}
