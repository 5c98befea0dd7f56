package engine

import (
	"errors"
	"fmt"

	"go-dbsync/internal/models"
)

// ErrManualResolutionRequired is matched by every *ManualResolution.
var ErrManualResolutionRequired = errors.New("manual resolution required")

// ManualResolution is returned by the resolver when a conflict needs a human
// decision. It is an expected outcome, not a fault.
type ManualResolution struct {
	RecordKey         string
	MasterData        models.Record
	SlaveData         models.Record
	ConflictingFields []string
	Reason            string
}

func (m *ManualResolution) Error() string {
	return fmt.Sprintf("record %s: %s", m.RecordKey, m.Reason)
}

func (m *ManualResolution) Is(target error) bool {
	return target == ErrManualResolutionRequired
}

// RecordSyncError is a failure confined to one record. The run counts it and
// moves on.
type RecordSyncError struct {
	RecordKey string
	Stage     string
	Err       error
}

func (e *RecordSyncError) Error() string {
	return fmt.Sprintf("record %s: %s: %v", e.RecordKey, e.Stage, e.Err)
}

func (e *RecordSyncError) Unwrap() error { return e.Err }

// JobFatalError aborts a run. Its message is recorded on the job.
type JobFatalError struct {
	Stage string
	Err   error
}

func (e *JobFatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *JobFatalError) Unwrap() error { return e.Err }

func fatal(stage string, err error) error {
	var jfe *JobFatalError
	if errors.As(err, &jfe) {
		return err
	}
	return &JobFatalError{Stage: stage, Err: err}
}
