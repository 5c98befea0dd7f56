package datasource

import (
	"errors"
	"time"

	"go-dbsync/internal/models"
)

var (
	ErrNotFound     = errors.New("datasource not found")
	ErrViewNotFound = errors.New("view not found")
)

const (
	defaultSampleLimit = 10
	maxPageLimit       = 100
)

// SampleDataRequest selects a slice of a table for preview.
type SampleDataRequest struct {
	Table   string
	Limit   int
	Filters models.Filter
}

type SampleData struct {
	Records []models.Record `json:"records"`
	Total   int64           `json:"total"`
}

// ViewPage is one page of the records matched by a view.
type ViewPage struct {
	Records        []models.Record `json:"records"`
	TotalRecords   int64           `json:"total_records"`
	CurrentPage    int             `json:"current_page"`
	TotalPages     int64           `json:"total_pages"`
	PerPage        int             `json:"per_page"`
	ViewName       string          `json:"view_name"`
	DataSourceName string          `json:"datasource_name"`
	TargetTable    string          `json:"target_table"`
	TimestampUTC   time.Time       `json:"timestamp_utc"`
}

type ViewCount struct {
	ViewID         string    `json:"view_id"`
	ViewName       string    `json:"view_name"`
	TotalRecords   int64     `json:"total_records"`
	TargetTable    string    `json:"target_table"`
	DataSourceName string    `json:"datasource_name"`
	TimestampUTC   time.Time `json:"timestamp_utc"`
}
