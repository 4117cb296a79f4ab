package outreach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/acreage/leadline/internal/domain"
)

// DateKey formats the UTC day bucket idempotency keys are scoped to.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// IdempotencyKey derives the stable key guarding one send: at most one
// attempt may exist per (lead, context, UTC day). An empty dateKey means
// today.
func IdempotencyKey(leadID int64, mc domain.MessageContext, dateKey string) string {
	if dateKey == "" {
		dateKey = DateKey(time.Now())
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", leadID, mc, dateKey)))
	return hex.EncodeToString(sum[:])
}
