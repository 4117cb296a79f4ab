package outreach

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/twilio"
)

// LeadStore is the lead access the dispatcher needs.
type LeadStore interface {
	Get(ctx context.Context, id int64) (*domain.Lead, error)
	AcquireSendLock(ctx context.Context, id int64, instance string, ttl time.Duration) (bool, error)
	ReleaseSendLock(ctx context.Context, id int64, instance string) error
	MarkContacted(ctx context.Context, id int64, nextFollowup *time.Time) error
}

// OwnerStore fetches owners for the TCPA gate.
type OwnerStore interface {
	Get(ctx context.Context, id int64) (*domain.Owner, error)
}

// ParcelStore fetches parcels for message personalization.
type ParcelStore interface {
	Get(ctx context.Context, id int64) (*domain.Parcel, error)
}

// PartyStore fetches parties for message personalization.
type PartyStore interface {
	Get(ctx context.Context, id int64) (*domain.Party, error)
}

// AttemptStore is the attempt ledger contract.
type AttemptStore interface {
	Reserve(ctx context.Context, a *domain.OutreachAttempt) error
	Finalize(ctx context.Context, id int64, status domain.AttemptStatus, result string, externalID, errMsg *string, sentAt *time.Time) error
	SetBody(ctx context.Context, id int64, body string) error
	LastSentAt(ctx context.Context, leadID int64) (*time.Time, error)
}

// TimelineStore appends lead history events.
type TimelineStore interface {
	Append(ctx context.Context, leadID int64, eventType string, detail any) error
}

// Gateway is the SMS transport. Satisfied by *twilio.Client.
type Gateway interface {
	SendSMS(ctx context.Context, to, body string) (*twilio.SendResult, error)
}

// Drafter generates a message body with the LLM. Satisfied by
// *llm.Client. A nil Drafter (or any error from it) falls back to the
// deterministic templates.
type Drafter interface {
	DraftMessage(ctx context.Context, p llm.MessageParams) (string, error)
}

// Budget hands out send slots against the fleet-wide daily cap. Take
// consumes one slot; ok=false means the cap is exhausted for today.
type Budget interface {
	Take(ctx context.Context) (ok bool, err error)
}
