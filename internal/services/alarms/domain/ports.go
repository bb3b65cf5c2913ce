package domain

import "context"

// SchedulerPort is the surface the admin API mounts against
type SchedulerPort interface {
	// Schedule validates, persists, and indexes a new alarm
	Schedule(ctx context.Context, req ScheduleRequest) (Alarm, error)

	// Update rewrites the mutable fields of an existing alarm, recomputing
	// utc_time; unknown identity is NotFound
	Update(ctx context.Context, req ScheduleRequest) (Alarm, error)

	// Unschedule removes the alarm from store and memory.
	// found=false is success, tolerating concurrent double-deletion
	Unschedule(ctx context.Context, codeID, email, localTime string) (found bool, err error)

	// List returns alarms from the store ordered by (code_id, email, local_time)
	List(ctx context.Context, limit, offset int) ([]Alarm, error)

	// Jobs returns the in-memory view
	Jobs() []Alarm

	// Count returns the in-memory alarm count
	Count() int

	// Clear empties in-memory structures only; the store is untouched
	Clear()

	// Reload rebuilds memory from the store, skipping and logging bad rows
	Reload(ctx context.Context) (loaded int, err error)

	// Stats summarizes the time index
	Stats() IndexStats

	// State reports the tick worker lifecycle state
	State() SchedulerState

	// SetDescription upserts the human description for a code id
	SetDescription(ctx context.Context, codeID, description string) error

	// Descriptions returns every code description
	Descriptions(ctx context.Context) (map[string]string, error)
}
