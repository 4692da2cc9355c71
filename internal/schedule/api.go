package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zapsend/internal/domain"
	"zapsend/pkg/logx"
)

// Create validates the spec and persists a new active schedule.
func (s *Service) Create(ctx context.Context, sp Spec) (domain.Schedule, error) {
	s.mu.Lock()
	loc := s.cfg.Location
	region := s.cfg.DefaultRegion
	s.mu.Unlock()

	sc, err := sp.build(time.Now(), loc, region)
	if err != nil {
		return domain.Schedule{}, err
	}
	if err := s.store.CreateSchedule(ctx, &sc); err != nil {
		return domain.Schedule{}, err
	}
	s.log.Info("schedule created",
		logx.Int64("schedule", sc.ID), logx.String("type", string(sc.Type)),
		logx.String("target", string(sc.Target)), logx.Time("next_run", sc.NextRunAt))
	return sc, nil
}

// Update is a partial edit: nil fields keep their current value.
type Update struct {
	Message        *string
	ScheduleType   *string
	RunAt          *time.Time
	CronExpression *string
}

// Update edits a live schedule's message or timing in place. Timing
// edits replan next_run_at; a paused schedule stays paused and keeps
// the new plan for resume. Terminal schedules cannot be edited.
func (s *Service) Update(ctx context.Context, id int64, up Update) (domain.Schedule, error) {
	s.mu.Lock()
	loc := s.cfg.Location
	s.mu.Unlock()
	now := time.Now()

	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}
	if sc.Terminal() {
		return domain.Schedule{}, fmt.Errorf("%w: schedule %d is %s", domain.ErrInvalidState, id, sc.Status)
	}
	observedStatus, observedNext := sc.Status, sc.NextRunAt

	if up.Message != nil {
		if err := validateMessage(*up.Message); err != nil {
			return domain.Schedule{}, err
		}
		sc.Message = *up.Message
	}

	timing := up.ScheduleType != nil || up.RunAt != nil || up.CronExpression != nil
	if up.ScheduleType != nil {
		switch t := domain.ScheduleType(*up.ScheduleType); t {
		case domain.ScheduleOnce, domain.ScheduleCron:
			sc.Type = t
		default:
			return domain.Schedule{}, fmt.Errorf("%w: schedule type must be %q or %q",
				domain.ErrInvalidInput, domain.ScheduleOnce, domain.ScheduleCron)
		}
	}
	if up.RunAt != nil {
		sc.RunAt = *up.RunAt
	}
	if up.CronExpression != nil {
		sc.CronExpression = strings.TrimSpace(*up.CronExpression)
	}

	if timing {
		switch sc.Type {
		case domain.ScheduleOnce:
			if sc.RunAt.IsZero() {
				return domain.Schedule{}, fmt.Errorf("%w: run_at is required for once schedules", domain.ErrInvalidInput)
			}
			sc.CronExpression = ""
			sc.NextRunAt = sc.RunAt
		case domain.ScheduleCron:
			if sc.CronExpression == "" {
				return domain.Schedule{}, fmt.Errorf("%w: cron expression is required for cron schedules", domain.ErrInvalidInput)
			}
			next, err := nextAfter(sc.CronExpression, now, now, loc)
			if err != nil {
				return domain.Schedule{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			sc.RunAt = time.Time{}
			sc.NextRunAt = next
		}
	}

	ok, err := s.store.UpdateSchedule(ctx, &sc, observedStatus, observedNext)
	if err != nil {
		return domain.Schedule{}, err
	}
	if !ok {
		// Claimed, paused, or cancelled between the read and the write.
		return domain.Schedule{}, s.stateError(ctx, id, observedStatus)
	}
	s.log.Info("schedule updated", logx.Int64("schedule", id),
		logx.String("type", string(sc.Type)), logx.Time("next_run", sc.NextRunAt))
	return sc, nil
}

func (s *Service) Get(ctx context.Context, id int64) (domain.Schedule, error) {
	return s.store.GetSchedule(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Schedule, error) {
	return s.store.ListSchedules(ctx)
}

// Pause suspends an active schedule. Occurrences that would have fired
// while paused are skipped, never queued.
func (s *Service) Pause(ctx context.Context, id int64) error {
	ok, err := s.store.SetScheduleStatus(ctx, id, domain.ScheduleActive, domain.SchedulePaused, nil)
	if err != nil {
		return err
	}
	if !ok {
		return s.stateError(ctx, id, domain.ScheduleActive)
	}
	s.log.Info("schedule paused", logx.Int64("schedule", id))
	return nil
}

// Resume reactivates a paused schedule. Cron schedules resume at the
// next occurrence computed from now, so nothing missed while paused is
// replayed. A once schedule whose run_at passed while paused is marked
// done without firing.
func (s *Service) Resume(ctx context.Context, id int64) error {
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sc.Status != domain.SchedulePaused {
		return fmt.Errorf("%w: schedule %d is %s, not %s",
			domain.ErrInvalidState, id, sc.Status, domain.SchedulePaused)
	}

	s.mu.Lock()
	loc := s.cfg.Location
	s.mu.Unlock()
	now := time.Now()

	var (
		to      = domain.ScheduleActive
		nextRun *time.Time
	)
	switch sc.Type {
	case domain.ScheduleCron:
		next, err := nextAfter(sc.CronExpression, now, now, loc)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
		}
		nextRun = &next
	case domain.ScheduleOnce:
		if !sc.RunAt.After(now) {
			to = domain.ScheduleDone
		} else {
			next := sc.RunAt
			nextRun = &next
		}
	}

	ok, err := s.store.SetScheduleStatus(ctx, id, domain.SchedulePaused, to, nextRun)
	if err != nil {
		return err
	}
	if !ok {
		// Status changed between the read and the update.
		return s.stateError(ctx, id, domain.SchedulePaused)
	}
	if to == domain.ScheduleDone {
		s.log.Info("schedule expired while paused", logx.Int64("schedule", id))
	} else {
		s.log.Info("schedule resumed", logx.Int64("schedule", id), logx.Time("next_run", *nextRun))
	}
	return nil
}

// Cancel retires a schedule permanently. Cancelling an already
// cancelled or done schedule is a no-op.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sc.Terminal() {
		return nil
	}
	if _, err := s.store.SetScheduleStatus(ctx, id, "", domain.ScheduleCancelled, nil); err != nil {
		return err
	}
	s.log.Info("schedule cancelled", logx.Int64("schedule", id))
	return nil
}

// stateError distinguishes "wrong state" from "gone" after a
// conditional update reported no rows.
func (s *Service) stateError(ctx context.Context, id int64, want domain.ScheduleStatus) error {
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: schedule %d is %s, not %s", domain.ErrInvalidState, id, sc.Status, want)
}
