package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is a member of the closed, versioned event vocabulary.
// New values are only ever appended; a value is never reused with a different meaning.
type EventType string

const (
	EventLeadOffered  EventType = "lead:offered"
	EventLeadAccepted EventType = "lead:accepted"
	EventLeadDeclined EventType = "lead:declined"
	EventLeadExpired  EventType = "lead:expired"

	EventQuoteSent      EventType = "quote:sent"
	EventQuoteAccepted  EventType = "quote:accepted"
	EventQuoteRejected  EventType = "quote:rejected"
	EventQuoteWithdrawn EventType = "quote:withdrawn"

	EventMessageSent EventType = "message:sent"
	EventMessageRead EventType = "message:read"

	EventConversationLocked   EventType = "conversation:locked"
	EventConversationArchived EventType = "conversation:archived"

	EventJobCreated    EventType = "job:created"
	EventJobPosted     EventType = "job:posted"
	EventJobCancelled  EventType = "job:cancelled"
	EventJobInProgress EventType = "job:in_progress"
	EventJobCompleted  EventType = "job:completed"

	EventMilestoneSubmitted EventType = "milestone:submitted"
	EventMilestoneApproved  EventType = "milestone:approved"
	EventMilestoneRejected  EventType = "milestone:rejected"
	EventMilestoneCompleted EventType = "milestone:completed"
	EventMilestoneDisputed  EventType = "milestone:disputed"

	EventPaymentReleased EventType = "payment:released"
	EventPaymentDisputed EventType = "payment:disputed"

	EventReviewPosted    EventType = "review:posted"
	EventReviewResponded EventType = "review:responded"

	EventErrorDoubleAccept      EventType = "error:double_accept"
	EventErrorInsufficientFunds EventType = "error:insufficient_funds"
)

// Category is the prefix before the colon, e.g. "milestone" for "milestone:disputed".
func (t EventType) Category() string {
	category, _, _ := strings.Cut(string(t), ":")
	return category
}

// Known reports whether t belongs to the registered vocabulary.
func (t EventType) Known() bool {
	_, ok := payloadDecoders[t]
	return ok
}

// EventTypes lists the registered vocabulary.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(payloadDecoders))
	for t := range payloadDecoders {
		out = append(out, t)
	}
	return out
}

// Event is an immutable Event Log row.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"event_type"`
	Category       string          `json:"event_category"`
	ActorID        string          `json:"actor_id"`
	ActorRole      string          `json:"actor_role"`
	SubjectType    string          `json:"subject_type"`
	SubjectID      string          `json:"subject_id"`
	JobID          string          `json:"job_id,omitempty"`
	OldState       string          `json:"old_state,omitempty"`
	NewState       string          `json:"new_state,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Roles used for actors and recipients.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)
