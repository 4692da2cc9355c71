// Package dispatch executes sends against the messaging provider.
//
// A bulk send to a group becomes a Job: a tracked unit of work with
// progress counters and one result per attempted recipient. Dispatch
// returns the job id immediately; a worker pool drains the queue and
// drives each recipient through the sender, rate limited and bounded
// by a per-send timeout. Callers poll Status for consistent snapshots
// until the job reaches a terminal state.
//
// # Delivery semantics
//
// A failed recipient never aborts its batch and is not retried within
// the same job; a retry is a new job. Any recipient failure marks the
// whole job failed once it finalizes, even when other recipients
// succeeded.
//
// The package also carries the immediate individual-send path, which
// shares the rate limiter and history log but needs no Job.
package dispatch
