package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"zapsend/internal/domain"
	"zapsend/internal/metrics"
	"zapsend/pkg/logx"
	"zapsend/pkg/phone"
)

// Config controls the runner.
type Config struct {
	Enabled       bool
	Tick          time.Duration  // default 15s
	Location      *time.Location // cron evaluation timezone; default time.Local
	DefaultRegion string         // phone parsing region for raw numbers
}

// Store is the persistence the schedule layer needs.
type Store interface {
	CreateSchedule(ctx context.Context, sc *domain.Schedule) error
	GetSchedule(ctx context.Context, id int64) (domain.Schedule, error)
	ListSchedules(ctx context.Context) ([]domain.Schedule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]domain.Schedule, error)
	// ClaimSchedule advances a due schedule iff it is still active
	// with the observed next_run_at; false means someone else won.
	ClaimSchedule(ctx context.Context, id int64, observedNextRun time.Time,
		newStatus domain.ScheduleStatus, nextRun *time.Time, firedAt time.Time) (bool, error)
	// SetScheduleStatus transitions status (conditionally when from is
	// non-empty), optionally updating next_run_at.
	SetScheduleStatus(ctx context.Context, id int64,
		from, to domain.ScheduleStatus, nextRun *time.Time) (bool, error)
	// UpdateSchedule rewrites message and timing fields, but only while
	// the row still carries the status and next_run_at the caller
	// observed; false means it changed underneath.
	UpdateSchedule(ctx context.Context, sc *domain.Schedule,
		observedStatus domain.ScheduleStatus, observedNextRun time.Time) (bool, error)
	CountSchedules(ctx context.Context, status domain.ScheduleStatus) (int, error)
}

// Dispatcher is the send side: the same paths immediate sends use.
type Dispatcher interface {
	Dispatch(ctx context.Context, groupID int64, message string) (string, error)
	SendIndividual(ctx context.Context, target domain.Target, message string) (domain.MessageRecord, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	store   Store
	disp    Dispatcher
	metrics metrics.Sink
	log     logx.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Spec is the raw input for creating a schedule.
type Spec struct {
	TargetType   string // "individual" or "group"
	ScheduleType string // "once" or "cron"
	Message      string

	ContactID int64  // individual
	Phone     string // individual

	GroupID int64 // group

	RunAt          time.Time // once
	CronExpression string    // cron
}

func validateMessage(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(msg) > 4096 {
		return fmt.Errorf("%w: message exceeds 4096 characters", domain.ErrInvalidInput)
	}
	return nil
}

// build validates the spec and produces the schedule to persist,
// including the initial next_run_at.
func (sp Spec) build(now time.Time, loc *time.Location, region string) (domain.Schedule, error) {
	sc := domain.Schedule{
		JobKey:    uuid.NewString(),
		Message:   sp.Message,
		Status:    domain.ScheduleActive,
		CreatedAt: now,
	}

	if err := validateMessage(sp.Message); err != nil {
		return domain.Schedule{}, err
	}

	switch domain.TargetType(sp.TargetType) {
	case domain.TargetIndividual:
		sc.Target = domain.TargetIndividual
		hasContact := sp.ContactID != 0
		hasPhone := strings.TrimSpace(sp.Phone) != ""
		switch {
		case hasContact && hasPhone:
			return domain.Schedule{}, fmt.Errorf("%w: provide contact_id or phone, not both", domain.ErrInvalidInput)
		case hasContact:
			sc.ContactID = sp.ContactID
		case hasPhone:
			normalized, err := phone.NormalizeE164(sp.Phone, region)
			if err != nil {
				return domain.Schedule{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			sc.Phone = normalized
		default:
			return domain.Schedule{}, fmt.Errorf("%w: individual schedule needs contact_id or phone", domain.ErrInvalidInput)
		}
	case domain.TargetGroup:
		sc.Target = domain.TargetGroup
		if sp.GroupID == 0 {
			return domain.Schedule{}, fmt.Errorf("%w: group schedule needs group_id", domain.ErrInvalidInput)
		}
		sc.GroupID = sp.GroupID
	default:
		return domain.Schedule{}, fmt.Errorf("%w: target type must be %q or %q",
			domain.ErrInvalidInput, domain.TargetIndividual, domain.TargetGroup)
	}

	switch domain.ScheduleType(sp.ScheduleType) {
	case domain.ScheduleOnce:
		sc.Type = domain.ScheduleOnce
		if sp.RunAt.IsZero() {
			return domain.Schedule{}, fmt.Errorf("%w: run_at is required for once schedules", domain.ErrInvalidInput)
		}
		sc.RunAt = sp.RunAt
		// A run_at already in the past is accepted: it fires once on
		// the next tick.
		sc.NextRunAt = sp.RunAt
	case domain.ScheduleCron:
		sc.Type = domain.ScheduleCron
		expr := strings.TrimSpace(sp.CronExpression)
		if expr == "" {
			return domain.Schedule{}, fmt.Errorf("%w: cron expression is required for cron schedules", domain.ErrInvalidInput)
		}
		next, err := nextAfter(expr, now, now, loc)
		if err != nil {
			return domain.Schedule{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		sc.CronExpression = expr
		sc.NextRunAt = next
	default:
		return domain.Schedule{}, fmt.Errorf("%w: schedule type must be %q or %q",
			domain.ErrInvalidInput, domain.ScheduleOnce, domain.ScheduleCron)
	}

	return sc, nil
}
