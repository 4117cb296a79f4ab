package domain

import "time"

// MessageContext identifies which touch of the cadence a send belongs to.
// It is one of the three inputs to the idempotency key, so the same lead
// can receive at most one message per context per UTC day.
type MessageContext string

const (
	ContextIntro    MessageContext = "intro"
	ContextFollowup MessageContext = "followup"
	ContextFinal    MessageContext = "final"
)

// Valid reports whether c is a known message context.
func (c MessageContext) Valid() bool {
	switch c {
	case ContextIntro, ContextFollowup, ContextFinal:
		return true
	}
	return false
}

// AttemptStatus enumerates the lifecycle of one outreach attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSent    AttemptStatus = "sent"
	AttemptFailed  AttemptStatus = "failed"
	AttemptDryRun  AttemptStatus = "dry_run"
)

// Attempt results. Stable strings: they are persisted and surfaced to
// callers, so renaming one is a breaking change.
const (
	ResultSent                 = "sent"
	ResultDryRun               = "dry_run"
	ResultDeliveryFailed       = "delivery_failed"
	ResultInvalidNumber        = "invalid_number"
	ResultGeoRestricted        = "geo_restricted"
	ResultBlacklisted          = "blacklisted"
	ResultUnverifiedRecipient  = "unverified_recipient"
	ResultAuthError            = "auth_error"
	ResultRateLimited          = "rate_limited"
	ResultTwilioError          = "twilio_error"
)

// OutreachAttempt is one outbound send record. At most one row exists per
// idempotency key; the key is reserved with status=pending before the
// gateway is called and finalized afterwards in a separate transaction.
type OutreachAttempt struct {
	ID             int64          `json:"id" db:"id"`
	LeadID         int64          `json:"lead_id" db:"lead_id"`
	IdempotencyKey *string        `json:"idempotency_key,omitempty" db:"idempotency_key"`
	Channel        string         `json:"channel" db:"channel"`
	MessageBody    string         `json:"message_body" db:"message_body"`
	MessageContext MessageContext `json:"message_context" db:"message_context"`
	Status         AttemptStatus  `json:"status" db:"status"`
	Result         *string        `json:"result,omitempty" db:"result"`
	ExternalID     *string        `json:"external_id,omitempty" db:"external_id"`

	SentAt             *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	ResponseReceivedAt *time.Time `json:"response_received_at,omitempty" db:"response_received_at"`
	ResponseBody       *string    `json:"response_body,omitempty" db:"response_body"`

	ReplyClassification *ReplyClassification `json:"reply_classification,omitempty" db:"reply_classification"`
	ErrorMessage        *string              `json:"error_message,omitempty" db:"error_message"`
	CreatedAt           time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at" db:"updated_at"`
}

// Final reports whether the attempt has reached a terminal status.
func (a *OutreachAttempt) Final() bool {
	return a.Status != AttemptPending
}

// InboundMessage is a raw inbound SMS as received from the gateway
// webhook, persisted before any processing. MessageSid is unique so a
// webhook replay is a no-op.
type InboundMessage struct {
	ID          int64     `json:"id" db:"id"`
	MessageSid  string    `json:"message_sid" db:"message_sid"`
	FromPhone   string    `json:"from_phone" db:"from_phone"`
	Body        string    `json:"body" db:"body"`
	LeadID      *int64    `json:"lead_id,omitempty" db:"lead_id"`
	OwnerID     *int64    `json:"owner_id,omitempty" db:"owner_id"`
	Intent      *Intent   `json:"intent,omitempty" db:"intent"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
