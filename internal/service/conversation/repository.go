package conversation

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/twilio"
)

// OwnerStore resolves and updates owners by inbound phone number.
type OwnerStore interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Owner, error)
	SetOptOut(ctx context.Context, id int64) error
}

// LeadStore is the lead access the engine needs.
type LeadStore interface {
	ActiveForOwner(ctx context.Context, ownerID int64) (*domain.Lead, error)
	RecordReply(ctx context.Context, id int64, cls domain.ReplyClassification, stage domain.PipelineStage, status domain.LeadStatus, next *time.Time) error
}

// InboundStore is the raw inbound message ledger.
type InboundStore interface {
	Insert(ctx context.Context, m *domain.InboundMessage) error
	MarkProcessed(ctx context.Context, id int64, leadID, ownerID *int64, intent domain.Intent) error
}

// AttemptStore ties replies back to the outbound attempt that drew them.
type AttemptStore interface {
	RecordResponse(ctx context.Context, leadID int64, body string, cls domain.ReplyClassification) error
	LastSentBody(ctx context.Context, leadID int64) (string, error)
}

// TimelineStore appends lead history events.
type TimelineStore interface {
	Append(ctx context.Context, leadID int64, eventType string, detail any) error
}

// Gateway sends the opt-out acknowledgement. Satisfied by *twilio.Client.
type Gateway interface {
	SendSMS(ctx context.Context, to, body string) (*twilio.SendResult, error)
}

// Alerter receives leads the engine just marked hot. Satisfied by the
// alerts service; nil means the periodic alert scan picks them up.
type Alerter interface {
	HotLead(ctx context.Context, leadID int64) error
}
