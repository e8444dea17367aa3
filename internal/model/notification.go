package model

import "time"

// Channel is the delivery medium of a queue entry
type Channel string

const (
	ChannelEmail         Channel = "email"
	ChannelInApp         Channel = "in_app"
	ChannelSystemMessage Channel = "system_message"
)

// Status is the queue state; sent, suppressed and dead_letter are terminal
type Status string

const (
	StatusPending    Status = "pending"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
	StatusDeadLetter Status = "dead_letter"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSent, StatusSuppressed, StatusDeadLetter:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusSuppressed, StatusDeadLetter:
		return true
	}
	return false
}

const DefaultMaxAttempts = 5

// QueueEntry is one delivery obligation for one recipient on one channel.
type QueueEntry struct {
	ID            string            `json:"id"`
	EventID       string            `json:"event_id"`
	RecipientID   string            `json:"recipient_id"`
	Channel       Channel           `json:"channel"`
	EventType     EventType         `json:"event_type"`
	Category      Category          `json:"category"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	ActionURL     string            `json:"action_url,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
	Status        Status            `json:"status"`
	AttemptCount  int               `json:"attempt_count"`
	MaxAttempts   int               `json:"max_attempts"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	ClaimToken    string            `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
}

// QueueStats summarises the queue for audit dashboards.
type QueueStats struct {
	Counts        map[Status]int `json:"counts"`
	OldestPending *time.Time     `json:"oldest_pending,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastErrorAt   *time.Time     `json:"last_error_at,omitempty"`
}

// InAppNotification is the stored form of an in-app delivery.
type InAppNotification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventType EventType `json:"event_type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ActionURL string    `json:"action_url,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
