package domain

import (
	"time"
)

// PipelineStage enumerates the lifecycle stages of a lead.
type PipelineStage string

const (
	StageIngested  PipelineStage = "INGESTED"
	StagePreScore  PipelineStage = "PRE_SCORE"
	StageNew       PipelineStage = "NEW"
	StageContacted PipelineStage = "CONTACTED"
	StageReview    PipelineStage = "REVIEW"
	StageHot       PipelineStage = "HOT"
	StageOffer     PipelineStage = "OFFER"
	StageContract  PipelineStage = "CONTRACT"
)

// IsManuallyAdvanced reports whether the stage is one a human (or a
// confirmed contact) moved the lead into. Automated scoring never
// regresses a lead out of these stages.
func (s PipelineStage) IsManuallyAdvanced() bool {
	switch s {
	case StageContacted, StageReview, StageOffer, StageContract:
		return true
	}
	return false
}

// Valid reports whether s is a known pipeline stage.
func (s PipelineStage) Valid() bool {
	switch s {
	case StageIngested, StagePreScore, StageNew, StageContacted,
		StageReview, StageHot, StageOffer, StageContract:
		return true
	}
	return false
}

// LeadStatus is the coarse operational status of a lead, distinct from the
// pipeline stage. Stage answers "where in the funnel"; status answers
// "what happened last".
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusContacted     LeadStatus = "contacted"
	LeadStatusResponded     LeadStatus = "responded"
	LeadStatusUnderContract LeadStatus = "under_contract"
	LeadStatusClosed        LeadStatus = "closed"
	LeadStatusDead          LeadStatus = "dead"
)

// Valid reports whether s is a known lead status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusResponded,
		LeadStatusUnderContract, LeadStatusClosed, LeadStatusDead:
		return true
	}
	return false
}

// ReplyClassification is the engine's judgment of the owner's last reply.
type ReplyClassification string

const (
	ReplyInterested    ReplyClassification = "INTERESTED"
	ReplyNotInterested ReplyClassification = "NOT_INTERESTED"
	ReplySendOffer     ReplyClassification = "SEND_OFFER"
	ReplyConfused      ReplyClassification = "CONFUSED"
	ReplyDead          ReplyClassification = "DEAD"
)

// BlocksOutreach reports whether this classification permanently blocks
// further automated outreach to the lead.
func (r ReplyClassification) BlocksOutreach() bool {
	return r == ReplyNotInterested || r == ReplyDead
}

// Lead is one (owner, parcel) pair moving through the pipeline. The
// (OwnerID, ParcelID) pair is unique; everything else is lifecycle state.
type Lead struct {
	ID              int64         `json:"id" db:"id"`
	OwnerID         int64         `json:"owner_id" db:"owner_id"`
	ParcelID        int64         `json:"parcel_id" db:"parcel_id"`
	MarketCode      string        `json:"market_code" db:"market_code"`
	MotivationScore int           `json:"motivation_score" db:"motivation_score"`
	ScoreDetails    *ScoreBreakdown `json:"score_details,omitempty" db:"score_details"`
	PipelineStage   PipelineStage `json:"pipeline_stage" db:"pipeline_stage"`
	Status          LeadStatus    `json:"status" db:"status"`

	LastReplyClassification *ReplyClassification `json:"last_reply_classification,omitempty" db:"last_reply_classification"`
	LastReplyAt             *time.Time           `json:"last_reply_at,omitempty" db:"last_reply_at"`

	FollowupCount  int        `json:"followup_count" db:"followup_count"`
	LastFollowupAt *time.Time `json:"last_followup_at,omitempty" db:"last_followup_at"`
	NextFollowupAt *time.Time `json:"next_followup_at,omitempty" db:"next_followup_at"`
	LastAlertedAt  *time.Time `json:"last_alerted_at,omitempty" db:"last_alerted_at"`

	SendLockedAt *time.Time `json:"send_locked_at,omitempty" db:"send_locked_at"`
	SendLockedBy *string    `json:"send_locked_by,omitempty" db:"send_locked_by"`

	Tags      []string   `json:"tags,omitempty" db:"tags"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// OutreachBlocked reports whether the lead's last reply permanently blocks
// automated sends. A nil classification never blocks.
func (l *Lead) OutreachBlocked() bool {
	return l.LastReplyClassification != nil && l.LastReplyClassification.BlocksOutreach()
}

// SendLockHeldBy reports whether instance currently holds an unexpired
// send lock on the lead.
func (l *Lead) SendLockHeldBy(instance string, ttl time.Duration, now time.Time) bool {
	if l.SendLockedAt == nil || l.SendLockedBy == nil {
		return false
	}
	return *l.SendLockedBy == instance && now.Sub(*l.SendLockedAt) < ttl
}

// ScoreBreakdown is the structured factor-by-factor result of scoring a
// lead. Factor order is fixed so equal inputs serialize identically.
type ScoreBreakdown struct {
	Total            int           `json:"total"`
	Factors          []FactorScore `json:"factors"`
	Disqualified     bool          `json:"disqualified,omitempty"`
	DisqualifyReason string        `json:"disqualify_reason,omitempty"`
}

// FactorScore is one weighted factor's contribution to the total.
type FactorScore struct {
	Factor string `json:"factor"`
	Points int    `json:"points"`
	Detail string `json:"detail,omitempty"`
}
