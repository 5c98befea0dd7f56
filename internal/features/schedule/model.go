package schedule

import "time"

// refreshSpec is how often schedules are reloaded from the config store.
const refreshSpec = "@every 1m"

// triggeredBy is recorded on jobs started by the scheduler.
const triggeredBy = "scheduler"

// ScheduledRun is one registered config schedule.
type ScheduledRun struct {
	ConfigID   string     `json:"config_id"`
	ConfigName string     `json:"config_name"`
	Schedule   string     `json:"schedule"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	PrevRun    *time.Time `json:"prev_run,omitempty"`
}
