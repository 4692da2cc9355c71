package domain

import "time"

// Contact is one addressable recipient. WhatsAppNumber is stored in
// E.164 digits without the leading plus (the form the provider wants).
type Contact struct {
	ID             int64
	Name           string
	WhatsAppNumber string
	GroupID        int64 // 0 = not in a group
	CreatedAt      time.Time
}

// Group is a named set of contacts.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Message delivery outcomes recorded in history.
const (
	MessageStatusSent   = "sent"
	MessageStatusFailed = "failed"
)

// MessageRecord is one attempted delivery, successful or not. Exactly
// one of ContactID/PhoneNumber identifies the recipient (PhoneNumber is
// kept for sends to numbers that are not stored contacts).
type MessageRecord struct {
	ID                int64
	ContactID         int64 // 0 = non-contact send
	PhoneNumber       string
	Content           string
	Status            string
	Provider          string
	ProviderMessageID string
	Error             string
	CreatedAt         time.Time
}
