package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"zapsend/internal/domain"
	"zapsend/internal/metrics"
	"zapsend/pkg/logx"
)

// Config controls the dispatcher worker pool and send pacing.
type Config struct {
	Workers       int           // default 2
	QueueSize     int           // default 64
	RatePerSec    int           // sends per second toward the provider; default 1
	SendTimeout   time.Duration // per-recipient bound; default 30s
	StatusMax     int           // retained job statuses; default 200
	StatusTTL     time.Duration // default 24h
	DefaultRegion string        // phone parsing region for raw numbers
}

// Sender is the single-message delivery capability.
type Sender interface {
	Send(ctx context.Context, phoneE164, text string) (providerMessageID string, err error)
}

// Directory resolves recipients.
type Directory interface {
	GroupExists(ctx context.Context, id int64) (bool, error)
	// ContactsByGroup returns the group's contacts in stable
	// retrieval order; empty for an existing empty group.
	ContactsByGroup(ctx context.Context, id int64) ([]domain.Contact, error)
	ContactByID(ctx context.Context, id int64) (domain.Contact, error)
}

// MessageLog records every delivery attempt.
type MessageLog interface {
	AppendMessage(ctx context.Context, m domain.MessageRecord) error
}

// queuedJob is one bulk send waiting for a worker.
type queuedJob struct {
	id       string
	contacts []domain.Contact
	text     string
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	sender  Sender
	dir     Directory
	msgs    MessageLog
	metrics metrics.Sink
	log     logx.Logger

	limiter *rate.Limiter
	queue   chan queuedJob

	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed
	// when workers fully exit.
	stopDone  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	jobs *tracker
}
