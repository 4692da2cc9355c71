package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"zapsend/internal/domain"
	"zapsend/pkg/logx"
)

type memStore struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]*domain.Schedule
}

func newMemStore() *memStore {
	return &memStore{items: map[int64]*domain.Schedule{}}
}

func (m *memStore) CreateSchedule(ctx context.Context, sc *domain.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	sc.ID = m.seq
	cp := *sc
	m.items[sc.ID] = &cp
	return nil
}

func (m *memStore) GetSchedule(ctx context.Context, id int64) (domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.items[id]
	if !ok {
		return domain.Schedule{}, fmt.Errorf("schedule %d: %w", id, domain.ErrNotFound)
	}
	return *sc, nil
}

func (m *memStore) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Schedule, 0, len(m.items))
	for id := int64(1); id <= m.seq; id++ {
		if sc, ok := m.items[id]; ok {
			out = append(out, *sc)
		}
	}
	return out, nil
}

func (m *memStore) DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Schedule
	for id := int64(1); id <= m.seq; id++ {
		sc, ok := m.items[id]
		if !ok {
			continue
		}
		if sc.Status == domain.ScheduleActive && !sc.NextRunAt.IsZero() && !sc.NextRunAt.After(now) {
			out = append(out, *sc)
		}
	}
	return out, nil
}

func (m *memStore) ClaimSchedule(ctx context.Context, id int64, observedNextRun time.Time,
	newStatus domain.ScheduleStatus, nextRun *time.Time, firedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.items[id]
	if !ok || sc.Status != domain.ScheduleActive || !sc.NextRunAt.Equal(observedNextRun) {
		return false, nil
	}
	sc.Status = newStatus
	sc.LastRunAt = firedAt
	if nextRun != nil {
		sc.NextRunAt = *nextRun
	} else {
		sc.NextRunAt = time.Time{}
	}
	return true, nil
}

func (m *memStore) SetScheduleStatus(ctx context.Context, id int64,
	from, to domain.ScheduleStatus, nextRun *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.items[id]
	if !ok {
		return false, fmt.Errorf("schedule %d: %w", id, domain.ErrNotFound)
	}
	if from != "" && sc.Status != from {
		return false, nil
	}
	sc.Status = to
	if nextRun != nil {
		sc.NextRunAt = *nextRun
	}
	return true, nil
}

func (m *memStore) UpdateSchedule(ctx context.Context, sc *domain.Schedule,
	observedStatus domain.ScheduleStatus, observedNextRun time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[sc.ID]
	if !ok {
		return false, fmt.Errorf("schedule %d: %w", sc.ID, domain.ErrNotFound)
	}
	if cur.Status != observedStatus || !cur.NextRunAt.Equal(observedNextRun) {
		return false, nil
	}
	cur.Type = sc.Type
	cur.Message = sc.Message
	cur.RunAt = sc.RunAt
	cur.CronExpression = sc.CronExpression
	cur.NextRunAt = sc.NextRunAt
	return true, nil
}

func (m *memStore) CountSchedules(ctx context.Context, status domain.ScheduleStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sc := range m.items {
		if sc.Status == status {
			n++
		}
	}
	return n, nil
}

type firedCall struct {
	groupID int64
	phone   string
	contact int64
	message string
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []firedCall
	sendErr error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, groupID int64, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.calls = append(f.calls, firedCall{groupID: groupID, message: message})
	return fmt.Sprintf("job-%d", len(f.calls)), nil
}

func (f *fakeDispatcher) SendIndividual(ctx context.Context, target domain.Target, message string) (domain.MessageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return domain.MessageRecord{}, f.sendErr
	}
	call := firedCall{message: message}
	if id, ok := target.ContactID(); ok {
		call.contact = id
	}
	if p, ok := target.Phone(); ok {
		call.phone = p
	}
	f.calls = append(f.calls, call)
	return domain.MessageRecord{Status: domain.MessageStatusSent}, nil
}

func (f *fakeDispatcher) fired() []firedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]firedCall(nil), f.calls...)
}

func newTestRunner(st Store, disp Dispatcher) *Service {
	return New(Config{Enabled: true, Tick: time.Second, Location: time.UTC}, st, disp, nil, logx.Nop())
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	runAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetIndividual, Type: domain.ScheduleOnce,
		Message: "happy birthday", Phone: "16502530000",
		RunAt: runAt, NextRunAt: runAt, Status: domain.ScheduleActive,
	}
	if err := st.CreateSchedule(ctx, sc); err != nil {
		t.Fatal(err)
	}

	// Before the run time nothing fires.
	svc.tick(ctx, runAt.Add(-time.Minute))
	if len(disp.fired()) != 0 {
		t.Fatal("fired before run_at")
	}

	svc.tick(ctx, runAt.Add(time.Second))
	calls := disp.fired()
	if len(calls) != 1 || calls[0].phone != "16502530000" || calls[0].message != "happy birthday" {
		t.Fatalf("calls = %+v", calls)
	}

	got, _ := st.GetSchedule(ctx, sc.ID)
	if got.Status != domain.ScheduleDone {
		t.Fatalf("status = %s, want %s", got.Status, domain.ScheduleDone)
	}
	if !got.NextRunAt.IsZero() {
		t.Fatalf("next_run_at not cleared: %v", got.NextRunAt)
	}
	if !got.LastRunAt.Equal(runAt.Add(time.Second)) {
		t.Fatalf("last_run_at = %v", got.LastRunAt)
	}

	// Further ticks must not re-fire.
	svc.tick(ctx, runAt.Add(time.Hour))
	if len(disp.fired()) != 1 {
		t.Fatal("once schedule fired twice")
	}
}

func TestOncePastDueFiresOnFirstTick(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runAt := now.Add(-2 * time.Hour)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleOnce,
		Message: "late", GroupID: 4,
		RunAt: runAt, NextRunAt: runAt, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	svc.tick(ctx, now)
	calls := disp.fired()
	if len(calls) != 1 || calls[0].groupID != 4 {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestCronAdvancesWithoutBacklog(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	// Every 15 minutes, last planned at 10:00, runner waking late at 10:40:
	// exactly one fire, next occurrence 10:45 (10:15 and 10:30 skipped).
	planned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleCron,
		Message: "reminder", GroupID: 1, CronExpression: "*/15 * * * *",
		NextRunAt: planned, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	now := time.Date(2026, 3, 1, 10, 40, 0, 0, time.UTC)
	svc.tick(ctx, now)

	if len(disp.fired()) != 1 {
		t.Fatalf("fired %d times, want 1", len(disp.fired()))
	}
	got, _ := st.GetSchedule(ctx, sc.ID)
	if got.Status != domain.ScheduleActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	want := time.Date(2026, 3, 1, 10, 45, 0, 0, time.UTC)
	if !got.NextRunAt.Equal(want) {
		t.Fatalf("next_run_at = %v, want %v", got.NextRunAt, want)
	}

	// The same tick run again must be a no-op (claim already advanced it).
	svc.tick(ctx, now)
	if len(disp.fired()) != 1 {
		t.Fatal("re-tick fired again")
	}
}

func TestCronKeepsCadenceAcrossFires(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleCron,
		Message: "m", GroupID: 1, CronExpression: "0 * * * *",
		NextRunAt: start, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	// Tick a few seconds after each top of the hour, like a real ticker
	// with jitter would.
	for i := 0; i < 3; i++ {
		svc.tick(ctx, start.Add(time.Duration(i)*time.Hour).Add(7*time.Second))
	}
	if len(disp.fired()) != 3 {
		t.Fatalf("fired %d times, want 3", len(disp.fired()))
	}
	got, _ := st.GetSchedule(ctx, sc.ID)
	want := start.Add(3 * time.Hour)
	if !got.NextRunAt.Equal(want) {
		t.Fatalf("next_run_at = %v, want %v (jitter must not drift the cadence)", got.NextRunAt, want)
	}
}

func TestPausedScheduleDoesNotFire(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	runAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleOnce,
		Message: "m", GroupID: 1,
		RunAt: runAt, NextRunAt: runAt, Status: domain.SchedulePaused,
	}
	_ = st.CreateSchedule(ctx, sc)

	svc.tick(ctx, runAt.Add(time.Minute))
	if len(disp.fired()) != 0 {
		t.Fatal("paused schedule fired")
	}
}

func TestClaimLostMeansNoFire(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	runAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleOnce,
		Message: "m", GroupID: 1,
		RunAt: runAt, NextRunAt: runAt, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	// A competing runner claims between the due query and our claim.
	stale := *sc
	ok, err := st.ClaimSchedule(ctx, sc.ID, runAt, domain.ScheduleDone, nil, runAt)
	if err != nil || !ok {
		t.Fatalf("setup claim: ok=%v err=%v", ok, err)
	}

	svc.fireOne(ctx, stale, runAt.Add(time.Second))
	if len(disp.fired()) != 0 {
		t.Fatal("fired despite losing the claim")
	}
}

// A stored expression that parses but can never match a date (a corrupt
// row; creation rejects it) must retire the schedule, not wedge or spin
// the runner on every tick.
func TestUnusableCronRetiresSchedule(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	planned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleCron,
		Message: "m", GroupID: 1, CronExpression: "0 0 31 2 *",
		NextRunAt: planned, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	done := make(chan struct{})
	go func() {
		svc.tick(ctx, planned.Add(time.Second))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tick did not return for an unusable cron expression")
	}

	if len(disp.fired()) != 0 {
		t.Fatal("unusable schedule fired")
	}
	got, _ := st.GetSchedule(ctx, sc.ID)
	if got.Status != domain.ScheduleCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestDispatchErrorStillAdvancesSchedule(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	disp := &fakeDispatcher{sendErr: errors.New("queue closed")}
	svc := newTestRunner(st, disp)
	ctx := context.Background()

	planned := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sc := &domain.Schedule{
		Target: domain.TargetGroup, Type: domain.ScheduleCron,
		Message: "m", GroupID: 1, CronExpression: "0 * * * *",
		NextRunAt: planned, Status: domain.ScheduleActive,
	}
	_ = st.CreateSchedule(ctx, sc)

	svc.tick(ctx, planned.Add(time.Second))

	// The occurrence is consumed even though delivery failed; the cron
	// stays active with the next occurrence planned.
	got, _ := st.GetSchedule(ctx, sc.ID)
	if got.Status != domain.ScheduleActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if !got.NextRunAt.Equal(planned.Add(time.Hour)) {
		t.Fatalf("next_run_at = %v", got.NextRunAt)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	st := newMemStore()
	svc := New(Config{Enabled: true, Tick: 10 * time.Millisecond, Location: time.UTC},
		st, &fakeDispatcher{}, nil, logx.Nop())

	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx) // second Start is a no-op

	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	svc.Stop(stopCtx)
	svc.Stop(stopCtx) // idempotent
}
