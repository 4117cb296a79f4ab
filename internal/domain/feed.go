package domain

import "time"

// FeedState is the poll cursor for one county bulletin feed. LastGUID is
// the newest item announced so far; a restart resumes from it instead of
// re-announcing the whole feed.
type FeedState struct {
	FeedURL      string     `json:"feed_url" db:"feed_url"`
	MarketCode   string     `json:"market_code" db:"market_code"`
	LastGUID     *string    `json:"last_guid,omitempty" db:"last_guid"`
	LastPolledAt *time.Time `json:"last_polled_at,omitempty" db:"last_polled_at"`
	ErrorCount   int        `json:"error_count" db:"error_count"`
}
