package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DataSource describes how to reach one datastore. Secrets are never stored
// inline: PasswordRef and APIKeyRef hold references such as "env:PG_PASSWORD"
// or "vault:secret/db/orders#password".
type DataSource struct {
	ID              primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	Name            string                 `json:"name" bson:"name" validate:"required"`
	Description     string                 `json:"description" bson:"description"`
	Type            string                 `json:"type" bson:"type" validate:"required"`
	Host            string                 `json:"host" bson:"host"`
	Port            int                    `json:"port" bson:"port"`
	Database        string                 `json:"database" bson:"database"`
	Username        string                 `json:"username" bson:"username"`
	PasswordRef     string                 `json:"password_ref,omitempty" bson:"password_ref,omitempty"`
	APIURL          string                 `json:"api_url,omitempty" bson:"api_url,omitempty"`
	APIKeyRef       string                 `json:"api_key_ref,omitempty" bson:"api_key_ref,omitempty"`
	TablePrefix     string                 `json:"table_prefix,omitempty" bson:"table_prefix,omitempty"`
	ExtraConfig     map[string]interface{} `json:"extra_config,omitempty" bson:"extra_config,omitempty"`
	IsActive        bool                   `json:"is_active" bson:"is_active"`
	LastTestedAt    *time.Time             `json:"last_tested_at,omitempty" bson:"last_tested_at,omitempty"`
	LastTestSuccess *bool                  `json:"last_test_success,omitempty" bson:"last_test_success,omitempty"`
	CreatedAt       time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at" bson:"updated_at"`
}

// DataSourceType constants
const (
	DataSourceTypePostgreSQL = "postgresql"
	DataSourceTypeMySQL      = "mysql"
	DataSourceTypeSQLite     = "sqlite"
	DataSourceTypeMongoDB    = "mongodb"
	DataSourceTypeMemory     = "memory"
)

// ConnectionFields lists the update keys that invalidate a previous
// connection test.
var ConnectionFields = []string{"type", "host", "port", "database", "username", "password_ref", "api_url", "api_key_ref"}

// Config structure examples:
// PostgreSQL/MySQL: {
//   "host": "db.internal",
//   "port": 5432,
//   "database": "shop",
//   "username": "sync",
//   "password_ref": "env:SHOP_DB_PASSWORD",
//   "extra_config": {"schema": "public", "sslmode": "require"}
// }
// SQLite: {"database": "/var/lib/dbsync/cache.db"}
// MongoDB: {"host": "mongo", "port": 27017, "database": "crm"} or {"extra_config": {"uri": "mongodb+srv://..."}}
