package domain

import "time"

type TargetType string

const (
	TargetIndividual TargetType = "individual"
	TargetGroup      TargetType = "group"
)

type ScheduleType string

const (
	ScheduleOnce ScheduleType = "once"
	ScheduleCron ScheduleType = "cron"
)

type ScheduleStatus string

const (
	ScheduleActive    ScheduleStatus = "active"
	SchedulePaused    ScheduleStatus = "paused"
	ScheduleCancelled ScheduleStatus = "cancelled"
	// ScheduleDone is reachable only by once schedules, after firing.
	ScheduleDone ScheduleStatus = "done"
)

// Schedule is a persisted deferred or recurring send intent.
//
// Targeting: for individual schedules exactly one of ContactID/Phone is
// set; for group schedules GroupID is set. For once schedules RunAt is
// the single occurrence; for cron schedules CronExpression drives
// NextRunAt. NextRunAt is maintained for both types so the runner has a
// single due query.
type Schedule struct {
	ID      int64
	JobKey  string // stable external key, assigned at creation
	Target  TargetType
	Type    ScheduleType
	Message string

	ContactID int64
	Phone     string
	GroupID   int64

	RunAt          time.Time // once only
	CronExpression string    // cron only
	NextRunAt      time.Time

	Status    ScheduleStatus
	LastRunAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fireable reports whether the schedule may still produce sends.
func (s Schedule) Fireable() bool { return s.Status == ScheduleActive }

// Terminal reports whether the schedule can never fire again.
func (s Schedule) Terminal() bool {
	return s.Status == ScheduleCancelled || s.Status == ScheduleDone
}
