package domain

import "time"

// Party is a canonical owner identity, deduplicated across rolls by the
// match hash (SHA-256 of uppercased "name|zip"). MailingDeliverable is
// nil until the address verifier has seen the mailing address.
type Party struct {
	ID                 int64      `json:"id" db:"id"`
	NormalizedName     string     `json:"normalized_name" db:"normalized_name"`
	NormalizedZip      string     `json:"normalized_zip" db:"normalized_zip"`
	MatchHash          string     `json:"match_hash" db:"match_hash"`
	DisplayName        string     `json:"display_name" db:"display_name"`
	RawMailingAddress  *string    `json:"raw_mailing_address,omitempty" db:"raw_mailing_address"`
	MailingDeliverable *bool      `json:"mailing_deliverable,omitempty" db:"mailing_deliverable"`
	MailingVerifiedAt  *time.Time `json:"mailing_verified_at,omitempty" db:"mailing_verified_at"`
	MarketCode         string     `json:"market_code" db:"market_code"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Owner is the contact channel bound to a Party. OptOut and DNR are
// monotonic: once set they are never cleared by the engine.
type Owner struct {
	ID           int64      `json:"id" db:"id"`
	PartyID      int64      `json:"party_id" db:"party_id"`
	PhonePrimary *string    `json:"phone_primary,omitempty" db:"phone_primary"`
	Email        *string    `json:"email,omitempty" db:"email"`
	IsTCPASafe   bool       `json:"is_tcpa_safe" db:"is_tcpa_safe"`
	IsDNR        bool       `json:"is_dnr" db:"is_dnr"`
	OptOut       bool       `json:"opt_out" db:"opt_out"`
	OptOutAt     *time.Time `json:"opt_out_at,omitempty" db:"opt_out_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Reachable reports whether automated outreach to this owner is even
// conceivable: not opted out, not DNR, and holding a phone number.
// It does not check TCPA mobile safety; the dispatcher gate does.
func (o *Owner) Reachable() bool {
	return !o.OptOut && !o.IsDNR && o.PhonePrimary != nil && *o.PhonePrimary != ""
}
