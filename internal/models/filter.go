package models

// Record is the unit moved between adapters: column name to scalar or
// JSON-compatible value.
type Record = map[string]interface{}

// Filter operators accepted on the wire.
const (
	OpEqual    = "=="
	OpNotEqual = "!="
	OpGreater  = ">"
	OpLess     = "<"
	OpContains = "contains"
)

// FilterClause is one element of the filter wire format.
type FilterClause struct {
	Field    string      `json:"field" bson:"field"`
	Operator string      `json:"operator" bson:"operator"`
	Value    interface{} `json:"value" bson:"value"`
}

// Filter is an ordered list of clauses joined with AND.
type Filter []FilterClause

// Column describes one column as reported by an adapter.
type Column struct {
	Name       string      `json:"name" bson:"name"`
	Type       string      `json:"type" bson:"type"`
	Nullable   bool        `json:"nullable" bson:"nullable"`
	Default    interface{} `json:"default" bson:"default"`
	PrimaryKey bool        `json:"primary_key" bson:"primary_key"`
}
