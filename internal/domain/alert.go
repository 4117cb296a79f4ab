package domain

import "time"

// AlertConfig is the per-market hot-lead alerting policy. A market with
// Enabled=false, or with no sinks configured, alerts nothing.
type AlertConfig struct {
	ID                int64     `json:"id" db:"id"`
	MarketCode        string    `json:"market_code" db:"market_code"`
	Enabled           bool      `json:"enabled" db:"enabled"`
	HotScoreThreshold int       `json:"hot_score_threshold" db:"hot_score_threshold"`
	SMSRecipients     []string  `json:"sms_recipients,omitempty" db:"sms_recipients"`
	SlackChannel      *string   `json:"slack_channel,omitempty" db:"slack_channel"`
	EmailRecipients   []string  `json:"email_recipients,omitempty" db:"email_recipients"`
	DedupHours        int       `json:"dedup_hours" db:"dedup_hours"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// HasSinks reports whether at least one delivery channel is configured.
func (c *AlertConfig) HasSinks() bool {
	return len(c.SMSRecipients) > 0 || (c.SlackChannel != nil && *c.SlackChannel != "") || len(c.EmailRecipients) > 0
}
