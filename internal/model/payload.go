package model

import (
	"encoding/json"
	"strings"

	appErr "github.com/samims/tradenotify/internal/errors"
)

// Payload is the typed body of one event type. Every EventType has exactly one Payload shape,
// and routing switches over these concrete types.
type Payload interface {
	EventType() EventType
	// Validate reports the recipient-identifying fields the event needs to be routed.
	Validate() error
}

// ConversationNotice is implemented by payloads that also post a system message into a conversation.
type ConversationNotice interface {
	Payload
	SystemMessage() (conversationID, text string)
}

type field struct{ name, value string }

func requireFields(t EventType, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return appErr.NewMalformed("%s: missing %s", t, strings.Join(missing, ", "))
	}
	return nil
}

type LeadOffered struct {
	LeadID   string `json:"lead_id"`
	VendorID string `json:"vendor_id"`
	JobTitle string `json:"job_title"`
}

func (LeadOffered) EventType() EventType { return EventLeadOffered }
func (p LeadOffered) Validate() error {
	return requireFields(EventLeadOffered, field{"lead_id", p.LeadID}, field{"vendor_id", p.VendorID})
}

type LeadAccepted struct {
	LeadID         string `json:"lead_id"`
	CustomerID     string `json:"customer_id"`
	VendorID       string `json:"vendor_id"`
	VendorName     string `json:"vendor_name"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (LeadAccepted) EventType() EventType { return EventLeadAccepted }
func (p LeadAccepted) Validate() error {
	return requireFields(EventLeadAccepted, field{"lead_id", p.LeadID}, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}

type LeadDeclined struct {
	LeadID     string `json:"lead_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
}

func (LeadDeclined) EventType() EventType { return EventLeadDeclined }
func (p LeadDeclined) Validate() error {
	return requireFields(EventLeadDeclined, field{"lead_id", p.LeadID}, field{"customer_id", p.CustomerID})
}

type LeadExpired struct {
	LeadID   string `json:"lead_id"`
	VendorID string `json:"vendor_id"`
	JobTitle string `json:"job_title"`
}

func (LeadExpired) EventType() EventType { return EventLeadExpired }
func (p LeadExpired) Validate() error {
	return requireFields(EventLeadExpired, field{"lead_id", p.LeadID}, field{"vendor_id", p.VendorID})
}

type QuoteSent struct {
	QuoteID     string `json:"quote_id"`
	CustomerID  string `json:"customer_id"`
	VendorID    string `json:"vendor_id"`
	VendorName  string `json:"vendor_name"`
	AmountPence int64  `json:"amount_pence"`
}

func (QuoteSent) EventType() EventType { return EventQuoteSent }
func (p QuoteSent) Validate() error {
	return requireFields(EventQuoteSent, field{"quote_id", p.QuoteID}, field{"customer_id", p.CustomerID})
}

type QuoteAccepted struct {
	QuoteID      string `json:"quote_id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	VendorID     string `json:"vendor_id"`
}

func (QuoteAccepted) EventType() EventType { return EventQuoteAccepted }
func (p QuoteAccepted) Validate() error {
	return requireFields(EventQuoteAccepted, field{"quote_id", p.QuoteID}, field{"vendor_id", p.VendorID})
}

type QuoteRejected struct {
	QuoteID      string `json:"quote_id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	VendorID     string `json:"vendor_id"`
}

func (QuoteRejected) EventType() EventType { return EventQuoteRejected }
func (p QuoteRejected) Validate() error {
	return requireFields(EventQuoteRejected, field{"quote_id", p.QuoteID}, field{"vendor_id", p.VendorID})
}

type QuoteWithdrawn struct {
	QuoteID    string `json:"quote_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
}

func (QuoteWithdrawn) EventType() EventType { return EventQuoteWithdrawn }
func (p QuoteWithdrawn) Validate() error {
	return requireFields(EventQuoteWithdrawn, field{"quote_id", p.QuoteID}, field{"customer_id", p.CustomerID})
}

type MessageSent struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	RecipientID    string `json:"recipient_id"`
}

func (MessageSent) EventType() EventType { return EventMessageSent }
func (p MessageSent) Validate() error {
	return requireFields(EventMessageSent,
		field{"message_id", p.MessageID}, field{"conversation_id", p.ConversationID}, field{"recipient_id", p.RecipientID})
}

type MessageRead struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	ReaderID       string `json:"reader_id"`
}

func (MessageRead) EventType() EventType { return EventMessageRead }
func (p MessageRead) Validate() error {
	return requireFields(EventMessageRead, field{"message_id", p.MessageID}, field{"reader_id", p.ReaderID})
}

type ConversationLocked struct {
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id"`
	VendorID       string `json:"vendor_id"`
	Reason         string `json:"reason"`
}

func (ConversationLocked) EventType() EventType { return EventConversationLocked }
func (p ConversationLocked) Validate() error {
	return requireFields(EventConversationLocked,
		field{"conversation_id", p.ConversationID}, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}
func (p ConversationLocked) SystemMessage() (string, string) {
	return p.ConversationID, "This conversation has been locked by an administrator."
}

type ConversationArchived struct {
	ConversationID string `json:"conversation_id"`
}

func (ConversationArchived) EventType() EventType { return EventConversationArchived }
func (p ConversationArchived) Validate() error {
	return requireFields(EventConversationArchived, field{"conversation_id", p.ConversationID})
}

type JobCreated struct {
	CustomerID string `json:"customer_id"`
	JobTitle   string `json:"job_title"`
}

func (JobCreated) EventType() EventType { return EventJobCreated }
func (p JobCreated) Validate() error {
	return requireFields(EventJobCreated, field{"customer_id", p.CustomerID})
}

type JobPosted struct {
	CustomerID string `json:"customer_id"`
	JobTitle   string `json:"job_title"`
}

func (JobPosted) EventType() EventType { return EventJobPosted }
func (p JobPosted) Validate() error {
	return requireFields(EventJobPosted, field{"customer_id", p.CustomerID})
}

type JobCancelled struct {
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id,omitempty"`
	JobTitle   string `json:"job_title"`
}

func (JobCancelled) EventType() EventType { return EventJobCancelled }
func (p JobCancelled) Validate() error {
	return requireFields(EventJobCancelled, field{"customer_id", p.CustomerID})
}

type JobInProgress struct {
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	JobTitle   string `json:"job_title"`
}

func (JobInProgress) EventType() EventType { return EventJobInProgress }
func (p JobInProgress) Validate() error {
	return requireFields(EventJobInProgress, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}

type JobCompleted struct {
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	JobTitle   string `json:"job_title"`
}

func (JobCompleted) EventType() EventType { return EventJobCompleted }
func (p JobCompleted) Validate() error {
	return requireFields(EventJobCompleted, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}

type MilestoneSubmitted struct {
	MilestoneID string `json:"milestone_id"`
	ContractID  string `json:"contract_id"`
	CustomerID  string `json:"customer_id"`
	VendorID    string `json:"vendor_id"`
	VendorName  string `json:"vendor_name"`
	Title       string `json:"title"`
}

func (MilestoneSubmitted) EventType() EventType { return EventMilestoneSubmitted }
func (p MilestoneSubmitted) Validate() error {
	return requireFields(EventMilestoneSubmitted, field{"milestone_id", p.MilestoneID}, field{"customer_id", p.CustomerID})
}

type MilestoneApproved struct {
	MilestoneID string `json:"milestone_id"`
	ContractID  string `json:"contract_id"`
	CustomerID  string `json:"customer_id"`
	VendorID    string `json:"vendor_id"`
	Title       string `json:"title"`
}

func (MilestoneApproved) EventType() EventType { return EventMilestoneApproved }
func (p MilestoneApproved) Validate() error {
	return requireFields(EventMilestoneApproved, field{"milestone_id", p.MilestoneID}, field{"vendor_id", p.VendorID})
}

type MilestoneRejected struct {
	MilestoneID string `json:"milestone_id"`
	ContractID  string `json:"contract_id"`
	CustomerID  string `json:"customer_id"`
	VendorID    string `json:"vendor_id"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
}

func (MilestoneRejected) EventType() EventType { return EventMilestoneRejected }
func (p MilestoneRejected) Validate() error {
	return requireFields(EventMilestoneRejected, field{"milestone_id", p.MilestoneID}, field{"vendor_id", p.VendorID})
}

type MilestoneCompleted struct {
	MilestoneID    string `json:"milestone_id"`
	ContractID     string `json:"contract_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CustomerID     string `json:"customer_id"`
	VendorID       string `json:"vendor_id"`
	Title          string `json:"title"`
}

func (MilestoneCompleted) EventType() EventType { return EventMilestoneCompleted }
func (p MilestoneCompleted) Validate() error {
	return requireFields(EventMilestoneCompleted,
		field{"milestone_id", p.MilestoneID}, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}
func (p MilestoneCompleted) SystemMessage() (string, string) {
	return p.ConversationID, "Milestone completed: " + p.Title
}

type MilestoneDisputed struct {
	MilestoneID    string `json:"milestone_id"`
	ContractID     string `json:"contract_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	CustomerID     string `json:"customer_id"`
	VendorID       string `json:"vendor_id"`
	Title          string `json:"title"`
	Reason         string `json:"reason,omitempty"`
}

func (MilestoneDisputed) EventType() EventType { return EventMilestoneDisputed }
func (p MilestoneDisputed) Validate() error {
	return requireFields(EventMilestoneDisputed,
		field{"milestone_id", p.MilestoneID}, field{"contract_id", p.ContractID},
		field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}
func (p MilestoneDisputed) SystemMessage() (string, string) {
	return p.ConversationID, "Milestone disputed: " + p.Title + ". The contract is locked until an admin resolves the dispute."
}

type PaymentReleased struct {
	PaymentID   string `json:"payment_id"`
	MilestoneID string `json:"milestone_id,omitempty"`
	CustomerID  string `json:"customer_id"`
	VendorID    string `json:"vendor_id"`
	AmountPence int64  `json:"amount_pence"`
}

func (PaymentReleased) EventType() EventType { return EventPaymentReleased }
func (p PaymentReleased) Validate() error {
	return requireFields(EventPaymentReleased, field{"payment_id", p.PaymentID}, field{"vendor_id", p.VendorID})
}

type PaymentDisputed struct {
	PaymentID  string `json:"payment_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	Reason     string `json:"reason,omitempty"`
}

func (PaymentDisputed) EventType() EventType { return EventPaymentDisputed }
func (p PaymentDisputed) Validate() error {
	return requireFields(EventPaymentDisputed,
		field{"payment_id", p.PaymentID}, field{"customer_id", p.CustomerID}, field{"vendor_id", p.VendorID})
}

type ReviewPosted struct {
	ReviewID     string `json:"review_id"`
	CustomerID   string `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	VendorID     string `json:"vendor_id"`
	Rating       int    `json:"rating"`
}

func (ReviewPosted) EventType() EventType { return EventReviewPosted }
func (p ReviewPosted) Validate() error {
	if err := requireFields(EventReviewPosted, field{"review_id", p.ReviewID}, field{"vendor_id", p.VendorID}); err != nil {
		return err
	}
	if p.Rating < 1 || p.Rating > 5 {
		return appErr.NewMalformed("%s: rating %d out of range", EventReviewPosted, p.Rating)
	}
	return nil
}

type ReviewResponded struct {
	ReviewID   string `json:"review_id"`
	CustomerID string `json:"customer_id"`
	VendorID   string `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
}

func (ReviewResponded) EventType() EventType { return EventReviewResponded }
func (p ReviewResponded) Validate() error {
	return requireFields(EventReviewResponded, field{"review_id", p.ReviewID}, field{"customer_id", p.CustomerID})
}

type ErrorDoubleAccept struct {
	LeadID   string `json:"lead_id"`
	VendorID string `json:"vendor_id"`
}

func (ErrorDoubleAccept) EventType() EventType { return EventErrorDoubleAccept }
func (p ErrorDoubleAccept) Validate() error {
	return requireFields(EventErrorDoubleAccept, field{"lead_id", p.LeadID})
}

type ErrorInsufficientFunds struct {
	VendorID       string `json:"vendor_id"`
	RequiredPence  int64  `json:"required_pence"`
	AvailablePence int64  `json:"available_pence"`
}

func (ErrorInsufficientFunds) EventType() EventType { return EventErrorInsufficientFunds }
func (p ErrorInsufficientFunds) Validate() error {
	return requireFields(EventErrorInsufficientFunds, field{"vendor_id", p.VendorID})
}

var payloadDecoders = map[EventType]func(json.RawMessage) (Payload, error){
	EventLeadOffered:            decodeAs[LeadOffered],
	EventLeadAccepted:           decodeAs[LeadAccepted],
	EventLeadDeclined:           decodeAs[LeadDeclined],
	EventLeadExpired:            decodeAs[LeadExpired],
	EventQuoteSent:              decodeAs[QuoteSent],
	EventQuoteAccepted:          decodeAs[QuoteAccepted],
	EventQuoteRejected:          decodeAs[QuoteRejected],
	EventQuoteWithdrawn:         decodeAs[QuoteWithdrawn],
	EventMessageSent:            decodeAs[MessageSent],
	EventMessageRead:            decodeAs[MessageRead],
	EventConversationLocked:     decodeAs[ConversationLocked],
	EventConversationArchived:   decodeAs[ConversationArchived],
	EventJobCreated:             decodeAs[JobCreated],
	EventJobPosted:              decodeAs[JobPosted],
	EventJobCancelled:           decodeAs[JobCancelled],
	EventJobInProgress:          decodeAs[JobInProgress],
	EventJobCompleted:           decodeAs[JobCompleted],
	EventMilestoneSubmitted:     decodeAs[MilestoneSubmitted],
	EventMilestoneApproved:      decodeAs[MilestoneApproved],
	EventMilestoneRejected:      decodeAs[MilestoneRejected],
	EventMilestoneCompleted:     decodeAs[MilestoneCompleted],
	EventMilestoneDisputed:      decodeAs[MilestoneDisputed],
	EventPaymentReleased:        decodeAs[PaymentReleased],
	EventPaymentDisputed:        decodeAs[PaymentDisputed],
	EventReviewPosted:           decodeAs[ReviewPosted],
	EventReviewResponded:        decodeAs[ReviewResponded],
	EventErrorDoubleAccept:      decodeAs[ErrorDoubleAccept],
	EventErrorInsufficientFunds: decodeAs[ErrorInsufficientFunds],
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, appErr.NewMalformed("decode %s: %v", p.EventType(), err)
		}
	}
	return p, nil
}

// DecodePayload turns an untyped (event type, metadata) pair into its typed payload.
// Unknown event types and undecodable metadata are malformed.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	decode, ok := payloadDecoders[t]
	if !ok {
		return nil, appErr.NewMalformed("unknown event type %q", t)
	}
	return decode(raw)
}
