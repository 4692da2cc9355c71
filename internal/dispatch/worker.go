package dispatch

import (
	"context"
	"time"

	"zapsend/internal/domain"
	"zapsend/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedJob) {
	for {
		// Fast-exit so stop wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execJob(ctx, j)
		}
	}
}

// execJob drives one bulk job to its terminal state. Recipients are
// processed sequentially in retrieval order; a started job always runs
// to completion (shutdown marks remaining recipients failed rather
// than leaving the job open).
func (s *Service) execJob(ctx context.Context, j queuedJob) {
	start := time.Now()
	s.jobs.markRunning(j.id)

	s.log.Info("bulk job started", logx.String("job", j.id), logx.Int("total", len(j.contacts)))

	for _, c := range j.contacts {
		pmid, sendErr := s.sendOne(ctx, c.WhatsAppNumber, j.text)
		ok := sendErr == nil

		errText := ""
		if sendErr != nil {
			errText = sendErr.Error()
		}
		s.appendHistory(c.ID, c.WhatsAppNumber, j.text, ok, pmid, errText)
		s.jobs.record(j.id, c.Name, ok, errText)
		s.metrics.MessageSent(ok)
	}

	s.jobs.finalize(j.id)

	snap, err := s.jobs.snapshot(j.id)
	if err != nil {
		return
	}
	s.metrics.JobFinished(snap.Status == JobFailed)

	fields := []logx.Field{
		logx.String("job", j.id),
		logx.Int("total", snap.Total),
		logx.Int("sent", snap.Sent),
		logx.Int("failed", snap.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if snap.Failed > 0 {
		s.log.Warn("bulk job finished with failures", fields...)
	} else {
		s.log.Info("bulk job finished", fields...)
	}
}

// sendOne performs one rate-limited, timeout-bounded delivery.
func (s *Service) sendOne(ctx context.Context, phoneE164, text string) (string, error) {
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.SendTimeout
	s.mu.Unlock()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := lim.Wait(ctx); err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sender.Send(sendCtx, phoneE164, text)
}

// appendHistory best-effort records the attempt; history loss never
// affects the job outcome.
func (s *Service) appendHistory(contactID int64, phone, content string, ok bool, pmid, errText string) {
	if s.msgs == nil {
		return
	}
	status := domain.MessageStatusSent
	if !ok {
		status = domain.MessageStatusFailed
	}
	rec := domain.MessageRecord{
		ContactID:         contactID,
		PhoneNumber:       phone,
		Content:           content,
		Status:            status,
		ProviderMessageID: pmid,
		Error:             errText,
		CreatedAt:         time.Now(),
	}
	hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.msgs.AppendMessage(hctx, rec); err != nil {
		s.log.Warn("message history append failed", logx.Err(err))
	}
}
