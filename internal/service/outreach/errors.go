package outreach

import (
	"errors"
	"fmt"
)

// SkipCode is the typed reason a dispatch was refused before any side
// effect. Stable strings: they are returned by the API and logged.
type SkipCode string

const (
	SkipOptOut         SkipCode = "OPT_OUT"
	SkipDNR            SkipCode = "DNR"
	SkipBlockedByReply SkipCode = "BLOCKED_CLASSIFICATION"
	SkipNoPhone        SkipCode = "NO_PHONE"
	SkipInvalidPhone   SkipCode = "INVALID_PHONE"
	SkipNotMobile      SkipCode = "NOT_MOBILE"
	SkipCooldown       SkipCode = "COOLDOWN"
	SkipBudget         SkipCode = "BUDGET_EXHAUSTED"
)

// SkipError reports a dispatch refused by policy. Nothing was recorded
// and nothing was sent.
type SkipError struct {
	Code   SkipCode
	Reason string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("outreach skipped (%s): %s", e.Code, e.Reason)
}

func skip(code SkipCode, format string, args ...interface{}) *SkipError {
	return &SkipError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// AsSkip unwraps a SkipError if err carries one.
func AsSkip(err error) (*SkipError, bool) {
	var s *SkipError
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

var (
	// ErrLockContended means another worker holds the lead's send lock.
	ErrLockContended = errors.New("send lock contended")

	// ErrDuplicateSend means the idempotency slot for this lead, context
	// and day is already taken; the existing attempt is returned with it.
	ErrDuplicateSend = errors.New("duplicate send for idempotency window")
)
