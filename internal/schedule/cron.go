package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions
// (minute hour day month day-of-week), the format schedules store.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

func parseCron(expr string) (cron.Schedule, error) {
	if len(strings.Fields(expr)) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields: minute hour day month day_of_week")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// nextAfter computes the next occurrence of expr strictly after both
// prev and now, walking the cron phase forward from prev. Keeping the
// phase anchored at the previous occurrence preserves a stable cadence
// under tick jitter, while the now bound skips occurrences that have
// already passed instead of firing a backlog.
func nextAfter(expr string, prev, now time.Time, loc *time.Location) (time.Time, error) {
	sched, err := parseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}

	base := prev
	if base.IsZero() {
		base = now
	}
	next := sched.Next(base.In(loc))
	for !next.After(now) {
		if next.IsZero() {
			// The parser gives up with a zero time when the expression
			// can never match a real date ("0 0 31 2 *").
			return time.Time{}, fmt.Errorf("cron expression %q never matches a date", expr)
		}
		next = sched.Next(next)
	}
	return next, nil
}

// ValidateCron reports whether expr is an acceptable recurrence rule:
// it must parse and have an upcoming occurrence.
func ValidateCron(expr string) error {
	_, err := nextAfter(strings.TrimSpace(expr), time.Time{}, time.Now(), nil)
	return err
}
