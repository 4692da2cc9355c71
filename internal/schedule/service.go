package schedule

import (
	"context"
	"runtime/debug"
	"time"

	"zapsend/internal/domain"
	"zapsend/internal/metrics"
	"zapsend/pkg/logx"
)

func New(cfg Config, store Store, disp Dispatcher, sink metrics.Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{cfg: cfg, store: store, disp: disp, metrics: sink, log: log}
}

// Start launches the tick loop. The runner is a singleton per process;
// calling Start on a running service is a no-op. Deployments that run
// several instances against one database stay safe through the store's
// claim step, not through this guard.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("schedule runner disabled")
		return
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, stopCh)
	}()

	s.log.Info("schedule runner started",
		logx.Duration("tick", s.cfg.Tick), logx.String("tz", s.cfg.Location.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("schedule runner stopped")
	case <-ctx.Done():
	}
}

func (s *Service) run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	// One immediate pass so past-due schedules do not wait a full tick
	// after startup.
	s.tick(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick evaluates all due schedules. Failures are isolated per
// schedule; one broken schedule never stops the rest of the pass.
func (s *Service) tick(ctx context.Context, now time.Time) {
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		s.log.Error("due schedule query failed", logx.Err(err))
		return
	}

	for _, sc := range due {
		s.fireOne(ctx, sc, now)
	}

	if n, err := s.store.CountSchedules(ctx, domain.ScheduleActive); err == nil {
		s.metrics.ActiveSchedules(n)
	}
}

// fireOne claims then fires a single due schedule.
func (s *Service) fireOne(ctx context.Context, sc domain.Schedule, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ScheduleError()
			s.log.Error("panic firing schedule",
				logx.Int64("schedule", sc.ID), logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	// Decide the post-fire state up front, then claim. The claim is
	// the only gate against double-sending: once it succeeds this
	// occurrence belongs to us, regardless of the send outcome.
	var (
		newStatus = domain.ScheduleDone
		nextRun   *time.Time
	)
	if sc.Type == domain.ScheduleCron {
		next, err := nextAfter(sc.CronExpression, sc.NextRunAt, now, s.cfg.Location)
		if err != nil {
			// Expression was validated at creation; treat as corrupt
			// and retire the schedule instead of wedging every tick.
			s.metrics.ScheduleError()
			s.log.Error("cron expression unusable; cancelling schedule",
				logx.Int64("schedule", sc.ID), logx.Err(err))
			_, _ = s.store.SetScheduleStatus(ctx, sc.ID, domain.ScheduleActive, domain.ScheduleCancelled, nil)
			return
		}
		newStatus = domain.ScheduleActive
		nextRun = &next
	}

	claimed, err := s.store.ClaimSchedule(ctx, sc.ID, sc.NextRunAt, newStatus, nextRun, now)
	if err != nil {
		s.metrics.ScheduleError()
		s.log.Error("schedule claim failed", logx.Int64("schedule", sc.ID), logx.Err(err))
		return
	}
	if !claimed {
		// Another runner fired it, or it was paused/cancelled since
		// the due query.
		return
	}

	s.metrics.ScheduleFired(string(sc.Type))

	switch sc.Target {
	case domain.TargetIndividual:
		var target domain.Target
		if sc.ContactID != 0 {
			target = domain.ByContact(sc.ContactID)
		} else {
			target = domain.ByPhone(sc.Phone)
		}
		rec, err := s.disp.SendIndividual(ctx, target, sc.Message)
		if err != nil {
			s.metrics.ScheduleError()
			s.log.Error("scheduled individual send failed",
				logx.Int64("schedule", sc.ID), logx.Err(err))
			return
		}
		if rec.Status == domain.MessageStatusFailed {
			s.log.Warn("scheduled message not delivered",
				logx.Int64("schedule", sc.ID), logx.String("reason", rec.Error))
		} else {
			s.log.Info("scheduled message sent", logx.Int64("schedule", sc.ID))
		}
	case domain.TargetGroup:
		jobID, err := s.disp.Dispatch(ctx, sc.GroupID, sc.Message)
		if err != nil {
			s.metrics.ScheduleError()
			s.log.Error("scheduled bulk send failed",
				logx.Int64("schedule", sc.ID), logx.Int64("group", sc.GroupID), logx.Err(err))
			return
		}
		s.log.Info("scheduled bulk send launched",
			logx.Int64("schedule", sc.ID), logx.String("job", jobID))
	default:
		s.metrics.ScheduleError()
		s.log.Error("schedule has unknown target type",
			logx.Int64("schedule", sc.ID), logx.String("target", string(sc.Target)))
	}
}
