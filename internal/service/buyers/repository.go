package buyers

import (
	"context"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/service/dealsheet"
	"github.com/acreage/leadline/internal/twilio"
)

// BuyerStore is the buyer book access the matcher and blaster need.
type BuyerStore interface {
	Get(ctx context.Context, id int64) (*domain.Buyer, error)
	ListByMarket(ctx context.Context, marketCode string) ([]domain.Buyer, error)
	RecordDealSent(ctx context.Context, id int64) error
}

// DealStore persists buyer-lead pairings. Upsert returns the row either
// way so the blast loop can see blast_sent_at.
type DealStore interface {
	Upsert(ctx context.Context, buyerID, leadID int64, matchScore int) (*domain.BuyerDeal, error)
	MarkBlastSent(ctx context.Context, id int64) error
}

// LeadStore fetches the lead being blasted.
type LeadStore interface {
	Get(ctx context.Context, id int64) (*domain.Lead, error)
}

// AttemptStore is the slice of the outreach ledger blasts use for
// daily idempotency.
type AttemptStore interface {
	Reserve(ctx context.Context, a *domain.OutreachAttempt) error
	Finalize(ctx context.Context, id int64, status domain.AttemptStatus, result string, externalID, errMsg *string, sentAt *time.Time) error
}

// TimelineStore appends lead history events.
type TimelineStore interface {
	Append(ctx context.Context, leadID int64, eventType string, detail any) error
}

// Gateway is the SMS transport. Satisfied by *twilio.Client.
type Gateway interface {
	SendSMS(ctx context.Context, to, body string) (*twilio.SendResult, error)
}

// SheetSource builds the deal sheet a blast is announcing. Satisfied by
// *dealsheet.Service.
type SheetSource interface {
	Generate(ctx context.Context, leadID int64) (*dealsheet.Sheet, error)
}

// Stores bundles the persistence the service needs.
type Stores struct {
	Buyers   BuyerStore
	Deals    DealStore
	Leads    LeadStore
	Attempts AttemptStore
	Timeline TimelineStore
}
