package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapsend/internal/domain"
)

func (s *Store) CreateSchedule(ctx context.Context, sc *domain.Schedule) error {
	now := time.Now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(job_key, target_type, schedule_type, contact_id, phone_number, group_id,
		                       message, run_at, cron_expression, next_run_at, status, last_run_at,
		                       created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.JobKey, string(sc.Target), string(sc.Type),
		nullInt(sc.ContactID), nullStr(sc.Phone), nullInt(sc.GroupID),
		sc.Message, nullMS(sc.RunAt), nullStr(sc.CronExpression), nullMS(sc.NextRunAt),
		string(sc.Status), nullMS(sc.LastRunAt), fmtTime(sc.CreatedAt), fmtTime(sc.UpdatedAt),
	)
	if err != nil {
		return err
	}
	sc.ID, err = res.LastInsertId()
	return err
}

func (s *Store) GetSchedule(ctx context.Context, id int64) (domain.Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Schedule{}, fmt.Errorf("schedule %d: %w", id, domain.ErrNotFound)
	}
	return sc, err
}

// ListSchedules returns all schedules ordered by creation.
func (s *Store) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DueSchedules returns active schedules whose next_run_at is at or
// before now, oldest first.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		scheduleSelect+` WHERE status = ? AND next_run_at IS NOT NULL AND next_run_at <= ? ORDER BY next_run_at`,
		string(domain.ScheduleActive), ms(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Schedule{}
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ClaimSchedule atomically advances a due schedule before it is fired:
// the row moves to newStatus with nextRun (nil clears it) and
// last_run_at = firedAt, but only if it is still active with the
// next_run_at the caller observed. A false return means another runner
// claimed it first (or it was paused/cancelled in between); the caller
// must not fire.
func (s *Store) ClaimSchedule(ctx context.Context, id int64, observedNextRun time.Time,
	newStatus domain.ScheduleStatus, nextRun *time.Time, firedAt time.Time) (bool, error) {

	var next any
	if nextRun != nil {
		next = ms(*nextRun)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET status = ?, next_run_at = ?, last_run_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND next_run_at = ?`,
		string(newStatus), next, ms(firedAt), fmtTime(time.Now()),
		id, string(domain.ScheduleActive), ms(observedNextRun),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetScheduleStatus transitions a schedule's status, optionally
// updating next_run_at. A non-empty from makes the transition
// conditional; ok=false then means the schedule was not in from.
func (s *Store) SetScheduleStatus(ctx context.Context, id int64,
	from, to domain.ScheduleStatus, nextRun *time.Time) (bool, error) {

	var next any
	if nextRun != nil {
		next = ms(*nextRun)
	}

	q := `UPDATE schedules SET status = ?, updated_at = ?`
	args := []any{string(to), fmtTime(time.Now())}
	if nextRun != nil {
		q += `, next_run_at = ?`
		args = append(args, next)
	}
	q += ` WHERE id = ?`
	args = append(args, id)
	if from != "" {
		q += ` AND status = ?`
		args = append(args, string(from))
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a failed precondition from a missing row.
		if _, err := s.GetSchedule(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// UpdateSchedule rewrites a schedule's message and timing columns, but
// only while the row still carries the status and next_run_at the
// caller observed, so an edit can never clobber a concurrent claim.
func (s *Store) UpdateSchedule(ctx context.Context, sc *domain.Schedule,
	observedStatus domain.ScheduleStatus, observedNextRun time.Time) (bool, error) {

	sc.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET schedule_type = ?, message = ?, run_at = ?, cron_expression = ?,
		        next_run_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND next_run_at = ?`,
		string(sc.Type), sc.Message, nullMS(sc.RunAt), nullStr(sc.CronExpression),
		nullMS(sc.NextRunAt), fmtTime(sc.UpdatedAt),
		sc.ID, string(observedStatus), ms(observedNextRun),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := s.GetSchedule(ctx, sc.ID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// CountSchedules counts schedules in the given status.
func (s *Store) CountSchedules(ctx context.Context, status domain.ScheduleStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schedules WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

const scheduleSelect = `
	SELECT id, job_key, target_type, schedule_type,
	       COALESCE(contact_id, 0), COALESCE(phone_number, ''), COALESCE(group_id, 0),
	       message, COALESCE(run_at, 0), COALESCE(cron_expression, ''), COALESCE(next_run_at, 0),
	       status, COALESCE(last_run_at, 0), created_at, updated_at
	FROM schedules`

func scanSchedule(r rowScanner) (domain.Schedule, error) {
	var sc domain.Schedule
	var target, schedType, status string
	var runAt, nextRun, lastRun int64
	var created, updated string
	err := r.Scan(&sc.ID, &sc.JobKey, &target, &schedType,
		&sc.ContactID, &sc.Phone, &sc.GroupID,
		&sc.Message, &runAt, &sc.CronExpression, &nextRun,
		&status, &lastRun, &created, &updated)
	if err != nil {
		return domain.Schedule{}, err
	}
	sc.Target = domain.TargetType(target)
	sc.Type = domain.ScheduleType(schedType)
	sc.Status = domain.ScheduleStatus(status)
	sc.RunAt = fromMS(runAt)
	sc.NextRunAt = fromMS(nextRun)
	sc.LastRunAt = fromMS(lastRun)
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updated)
	return sc, nil
}
