package sync

import (
	"errors"

	"go-dbsync/internal/models"
)

// ErrNotFound is returned for missing configs, jobs, conflicts and the
// datasources or views a config points at.
var ErrNotFound = errors.New("not found")

// TriggerRequest is the optional body of a run trigger.
type TriggerRequest struct {
	TriggeredBy string `json:"triggered_by"`
}

type ResolveConflictRequest struct {
	Status models.ResolutionStatus `json:"status"`
}

// JobProgress is the snapshot streamed to job watchers.
type JobProgress struct {
	*models.SyncJob
	Percent float64 `json:"percent"`
}

func progressOf(job *models.SyncJob) JobProgress {
	p := JobProgress{SyncJob: job}
	switch {
	case job.Status == models.JobStatusCompleted:
		p.Percent = 100
	case job.TotalRecords > 0:
		p.Percent = float64(job.ProcessedRecords) * 100 / float64(job.TotalRecords)
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}
