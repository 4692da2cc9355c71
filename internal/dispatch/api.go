package dispatch

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"zapsend/internal/domain"
	"zapsend/pkg/logx"
	"zapsend/pkg/phone"
)

// maxMessageRunes is the provider's text message limit.
const maxMessageRunes = 4096

func validateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: message is empty", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}
	return nil
}

// Dispatch launches a bulk send to every contact of the group and
// returns the job id immediately; sending proceeds on the worker pool
// and is observable through Status. An existing group with zero
// contacts yields a job that is already completed with total 0.
func (s *Service) Dispatch(ctx context.Context, groupID int64, message string) (string, error) {
	if err := validateMessage(message); err != nil {
		return "", err
	}
	ok, err := s.dir.GroupExists(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("resolving group %d: %w", groupID, err)
	}
	if !ok {
		return "", fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}
	contacts, err := s.dir.ContactsByGroup(ctx, groupID)
	if err != nil {
		return "", fmt.Errorf("resolving group %d contacts: %w", groupID, err)
	}

	id, err := s.jobs.create(len(contacts))
	if err != nil {
		return "", err
	}

	if len(contacts) == 0 {
		s.jobs.markRunning(id)
		s.jobs.finalize(id)
		s.log.Info("bulk job for empty group finalized", logx.String("job", id), logx.Int64("group", groupID))
		return id, nil
	}

	select {
	case s.queue <- queuedJob{id: id, contacts: contacts, text: message}:
		s.log.Debug("bulk job enqueued",
			logx.String("job", id), logx.Int64("group", groupID), logx.Int("total", len(contacts)))
	default:
		// Queue saturated: fail the job rather than block the caller.
		s.jobs.abort(id)
		s.log.Warn("dispatch queue full; job aborted", logx.String("job", id), logx.Int64("group", groupID))
	}
	return id, nil
}

// Status returns a consistent snapshot of the job. Terminal snapshots
// are stable: repeated polls of a finished job return the same state.
func (s *Service) Status(jobID string) (Job, error) {
	return s.jobs.snapshot(jobID)
}

// SendIndividual performs one immediate send to a contact or raw
// phone number. The outcome (including a delivery failure) is in the
// returned record; the error return is reserved for invalid input and
// unknown contacts.
func (s *Service) SendIndividual(ctx context.Context, target domain.Target, message string) (domain.MessageRecord, error) {
	if err := validateMessage(message); err != nil {
		return domain.MessageRecord{}, err
	}
	if err := target.Validate(); err != nil {
		return domain.MessageRecord{}, err
	}

	var (
		contactID int64
		dest      string
	)
	if id, ok := target.ContactID(); ok {
		c, err := s.dir.ContactByID(ctx, id)
		if err != nil {
			return domain.MessageRecord{}, err
		}
		contactID = c.ID
		dest = c.WhatsAppNumber
	} else {
		raw, _ := target.Phone()
		s.mu.Lock()
		region := s.cfg.DefaultRegion
		s.mu.Unlock()
		normalized, err := phone.NormalizeE164(raw, region)
		if err != nil {
			return domain.MessageRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		dest = normalized
	}

	pmid, sendErr := s.sendOne(ctx, dest, message)
	ok := sendErr == nil
	errText := ""
	if sendErr != nil {
		errText = sendErr.Error()
	}

	s.appendHistory(contactID, dest, message, ok, pmid, errText)
	s.metrics.MessageSent(ok)

	status := domain.MessageStatusSent
	if !ok {
		status = domain.MessageStatusFailed
	}
	return domain.MessageRecord{
		ContactID:         contactID,
		PhoneNumber:       dest,
		Content:           message,
		Status:            status,
		ProviderMessageID: pmid,
		Error:             errText,
	}, nil
}
