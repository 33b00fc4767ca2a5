package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventKind is the closed set of gateway event types the pipeline acts on.
type EventKind string

const (
	KindUnknown                 EventKind = ""
	KindCheckoutCompleted       EventKind = "checkout.session.completed"
	KindCheckoutAsyncSucceeded  EventKind = "checkout.session.async_payment_succeeded"
	KindSubscriptionCreated     EventKind = "customer.subscription.created"
	KindSubscriptionUpdated     EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted     EventKind = "customer.subscription.deleted"
	KindInvoicePaid             EventKind = "invoice.paid"
	KindInvoicePaymentSucceeded EventKind = "invoice.payment_succeeded"
	KindInvoicePaymentFailed    EventKind = "invoice.payment_failed"
	KindPaymentIntentSucceeded  EventKind = "payment_intent.succeeded"
	KindPaymentIntentFailed     EventKind = "payment_intent.payment_failed"
	KindChargeRefunded          EventKind = "charge.refunded"
)

var knownKinds = map[string]EventKind{
	string(KindCheckoutCompleted):       KindCheckoutCompleted,
	string(KindCheckoutAsyncSucceeded):  KindCheckoutAsyncSucceeded,
	string(KindSubscriptionCreated):     KindSubscriptionCreated,
	string(KindSubscriptionUpdated):     KindSubscriptionUpdated,
	string(KindSubscriptionDeleted):     KindSubscriptionDeleted,
	string(KindInvoicePaid):             KindInvoicePaid,
	string(KindInvoicePaymentSucceeded): KindInvoicePaymentSucceeded,
	string(KindInvoicePaymentFailed):    KindInvoicePaymentFailed,
	string(KindPaymentIntentSucceeded):  KindPaymentIntentSucceeded,
	string(KindPaymentIntentFailed):     KindPaymentIntentFailed,
	string(KindChargeRefunded):          KindChargeRefunded,
}

// ParseEventKind maps a gateway type tag onto a known kind. Anything else is
// KindUnknown.
func ParseEventKind(eventType string) EventKind {
	if kind, ok := knownKinds[eventType]; ok {
		return kind
	}
	return KindUnknown
}

func (k EventKind) Known() bool { return k != KindUnknown }

// InboundEvent is a verified gateway event. Object holds the raw data.object
// payload and Raw the full request body as signed.
type InboundEvent struct {
	ID      string
	Type    string
	Kind    EventKind
	Created time.Time
	Object  json.RawMessage
	Raw     []byte
}

// IdempotencyRecord marks an event id as admitted. ProcessedAt is informational.
type IdempotencyRecord struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	EventID     string       `json:"event_id" gorm:"type:text;not null;uniqueIndex"`
	EventType   string       `json:"event_type" gorm:"type:text;not null"`
	ReceivedAt  time.Time    `json:"received_at" gorm:"not null"`
	ProcessedAt *time.Time   `json:"processed_at"`
}

func (IdempotencyRecord) TableName() string { return "webhook_events" }

// FailureRecord is an audit row for an event whose handling failed.
type FailureRecord struct {
	ID           snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	EventID      string         `json:"event_id" gorm:"type:text;not null;index"`
	EventType    string         `json:"event_type" gorm:"type:text;not null"`
	RawPayload   datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	ErrorMessage string         `json:"error_message" gorm:"type:text;not null"`
	LoggedAt     time.Time      `json:"logged_at" gorm:"not null"`
	ReplayedAt   *time.Time     `json:"replayed_at,omitempty"`
}

func (FailureRecord) TableName() string { return "webhook_failures" }

// FailureFilter pages failures newest first. AfterID is exclusive.
type FailureFilter struct {
	AfterID     snowflake.ID
	Limit       int
	PendingOnly bool
}

type ResponseBody struct {
	Received  bool   `json:"received,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Response is what the HTTP layer writes back to the gateway.
type Response struct {
	Status int
	Body   ResponseBody
}
