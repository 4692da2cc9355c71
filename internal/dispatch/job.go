package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"zapsend/internal/domain"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Result is one recipient's outcome within a job.
type Result struct {
	RecipientName string
	Success       bool
	Error         string
}

// Job is a snapshot of one bulk-send execution.
//
// Invariant: Progress == Sent + Failed <= Total, and len(Results) ==
// Progress, at every observable snapshot.
type Job struct {
	ID       string
	Status   JobStatus
	Total    int
	Progress int
	Sent     int
	Failed   int
	Results  []Result

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// tracker owns the live job states. All mutation goes through one
// mutex so counters and the matching result entry become visible
// atomically; readers only ever get deep copies.
type tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	max int
	ttl time.Duration
}

func newTracker(max int, ttl time.Duration) *tracker {
	if max <= 0 {
		max = 200
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &tracker{jobs: map[string]*Job{}, max: max, ttl: ttl}
}

// create allocates a queued job for total recipients.
func (t *tracker) create(total int) (string, error) {
	if total < 0 {
		return "", fmt.Errorf("%w: total must be >= 0", domain.ErrInvalidInput)
	}
	now := time.Now()
	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(now)
	t.jobs[id] = &Job{
		ID:        id,
		Status:    JobQueued,
		Total:     total,
		Results:   make([]Result, 0, total),
		CreatedAt: now,
	}
	return id, nil
}

func (t *tracker) markRunning(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.jobs[id]
	if j == nil || j.Status.Terminal() {
		return
	}
	j.Status = JobRunning
	if j.StartedAt.IsZero() {
		j.StartedAt = time.Now()
	}
}

// record appends one recipient result and bumps the counters in the
// same critical section, so a concurrent snapshot never sees a count
// without its entry.
func (t *tracker) record(id, recipientName string, success bool, errText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.jobs[id]
	if j == nil || j.Status.Terminal() {
		return
	}
	if j.Progress >= j.Total {
		return
	}
	j.Results = append(j.Results, Result{RecipientName: recipientName, Success: success, Error: errText})
	j.Progress++
	if success {
		j.Sent++
	} else {
		j.Failed++
	}
}

// finalize moves the job to its terminal status: completed only when
// every recipient succeeded. After this the job is immutable.
func (t *tracker) finalize(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.jobs[id]
	if j == nil || j.Status.Terminal() {
		return
	}
	if j.Failed == 0 {
		j.Status = JobCompleted
	} else {
		j.Status = JobFailed
	}
	j.CompletedAt = time.Now()
}

// abort finalizes a job as failed before any recipient was attempted
// (e.g. the queue rejected it). Counters stay untouched so the
// invariant holds.
func (t *tracker) abort(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.jobs[id]
	if j == nil || j.Status.Terminal() {
		return
	}
	j.Status = JobFailed
	j.CompletedAt = time.Now()
}

// snapshot returns a deep copy of the job state.
func (t *tracker) snapshot(id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j := t.jobs[id]
	if j == nil {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	cp := *j
	cp.Results = append([]Result(nil), j.Results...)
	return cp, nil
}

// pruneLocked drops the oldest terminal jobs beyond the retention cap
// and terminal jobs older than the TTL. In-flight jobs are never
// pruned.
func (t *tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.ttl)
	for id, j := range t.jobs {
		if j.Status.Terminal() && !j.CompletedAt.IsZero() && j.CompletedAt.Before(cutoff) {
			delete(t.jobs, id)
		}
	}
	if len(t.jobs) < t.max {
		return
	}
	for len(t.jobs) >= t.max {
		oldestID := ""
		var oldest time.Time
		for id, j := range t.jobs {
			if !j.Status.Terminal() {
				continue
			}
			if oldestID == "" || j.CompletedAt.Before(oldest) {
				oldestID = id
				oldest = j.CompletedAt
			}
		}
		if oldestID == "" {
			return
		}
		delete(t.jobs, oldestID)
	}
}
