package domain

import (
	"encoding/json"
	"time"
)

// Timeline event types. Append-only; readers must tolerate unknown types.
const (
	EventLeadCreated    = "lead_created"
	EventScored         = "scored"
	EventStageChanged   = "stage_changed"
	EventMessageSent    = "message_sent"
	EventMessageFailed  = "message_failed"
	EventReplyReceived  = "reply_received"
	EventOptOut         = "opt_out"
	EventAlertSent      = "alert_sent"
	EventFollowupQueued = "followup_queued"
	EventBlastSent      = "blast_sent"
	EventStatusChanged  = "status_changed"
	EventEnriched       = "enriched"
)

// TimelineEvent is one append-only audit entry for a lead.
type TimelineEvent struct {
	ID        int64           `json:"id" db:"id"`
	LeadID    int64           `json:"lead_id" db:"lead_id"`
	EventType string          `json:"event_type" db:"event_type"`
	Detail    json.RawMessage `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
