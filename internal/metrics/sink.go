// Package metrics defines the instrumentation sink used by the
// dispatcher and the schedule runner. Implementations must be
// non-blocking and fire-and-forget; callers never check errors.
package metrics

// Sink receives counters from the send and scheduling paths.
type Sink interface {
	// MessageSent records one delivery attempt.
	MessageSent(ok bool)
	// JobFinished records a finalized bulk job.
	JobFinished(failed bool)
	// ScheduleFired records a schedule firing, by schedule type
	// ("once" or "cron").
	ScheduleFired(scheduleType string)
	// ScheduleError records a schedule that could not be fired.
	ScheduleError()
	// ActiveSchedules reports the current number of active schedules.
	ActiveSchedules(n int)
}
