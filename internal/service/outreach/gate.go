package outreach

import (
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/phone"
)

// CheckTCPA runs the compliance gate in its fixed order and returns the
// first failure, or the normalized E.164 number on pass. Opt-out and DNR
// can never be bypassed; a blocking reply classification can, with
// force, for a human-approved manual send.
func CheckTCPA(owner *domain.Owner, lead *domain.Lead, force bool) (string, *SkipError) {
	if owner.OptOut {
		return "", skip(SkipOptOut, "owner %d opted out", owner.ID)
	}
	if owner.IsDNR {
		return "", skip(SkipDNR, "owner %d is do-not-contact", owner.ID)
	}
	if !force && lead.OutreachBlocked() {
		return "", skip(SkipBlockedByReply, "lead %d last reply %s", lead.ID, *lead.LastReplyClassification)
	}
	if owner.PhonePrimary == nil || *owner.PhonePrimary == "" {
		return "", skip(SkipNoPhone, "owner %d has no phone", owner.ID)
	}
	e164, ok := phone.Normalize(*owner.PhonePrimary)
	if !ok {
		return "", skip(SkipInvalidPhone, "owner %d phone does not normalize", owner.ID)
	}
	if !phone.LikelyMobile(e164) {
		return "", skip(SkipNotMobile, "owner %d phone fails the mobile screen", owner.ID)
	}
	return e164, nil
}
