package alerts

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/twilio"
)

// Gateway sends SMS. The Twilio client satisfies it.
type Gateway interface {
	SendSMS(ctx context.Context, to, body string) (*twilio.SendResult, error)
}

// TwilioSink texts the alert summary to the market's on-call numbers.
type TwilioSink struct {
	gateway Gateway
}

// NewTwilioSink wraps the shared SMS gateway as an alert sink.
func NewTwilioSink(g Gateway) *TwilioSink { return &TwilioSink{gateway: g} }

func (s *TwilioSink) Name() string { return "twilio" }

func (s *TwilioSink) Configured(cfg *domain.AlertConfig) bool {
	return len(cfg.SMSRecipients) > 0
}

// Send texts every recipient. One delivered message is a success; the
// last failure is returned only when nobody got it.
func (s *TwilioSink) Send(ctx context.Context, cfg *domain.AlertConfig, a Alert) error {
	var sent int
	var lastErr error
	for _, to := range cfg.SMSRecipients {
		res, err := s.gateway.SendSMS(ctx, to, a.Summary)
		if err != nil {
			lastErr = err
			continue
		}
		if res == nil || !res.Success {
			msg := "no result"
			if res != nil {
				msg = res.ErrorMsg
			}
			lastErr = fmt.Errorf("alerts: sms to %s: %s", to, msg)
			continue
		}
		sent++
	}
	if sent == 0 {
		if lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("alerts: no sms recipients configured")
	}
	return nil
}

// poster is the slice of the slack-go client the sink calls.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...goslack.MsgOption) (string, string, error)
}

// SlackSink posts alerts to the market's channel.
type SlackSink struct {
	api poster
}

// NewSlackSink builds a Slack sink from the bot token. BaseURL points the
// client at a mock API in tests.
func NewSlackSink(cfg config.SlackConfig) *SlackSink {
	opts := []goslack.Option{}
	if cfg.BaseURL != "" {
		opts = append(opts, goslack.OptionAPIURL(cfg.BaseURL))
	}
	return &SlackSink{api: goslack.New(cfg.Token, opts...)}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Configured(cfg *domain.AlertConfig) bool {
	return cfg.SlackChannel != nil && *cfg.SlackChannel != ""
}

func (s *SlackSink) Send(ctx context.Context, cfg *domain.AlertConfig, a Alert) error {
	_, _, err := s.api.PostMessageContext(ctx, *cfg.SlackChannel,
		goslack.MsgOptionText(slackText(a), false))
	if err != nil {
		return fmt.Errorf("alerts: slack post: %w", err)
	}
	return nil
}

// slackText folds the summary and detail into one message. Slack gets the
// long form; it is the channel humans actually read back through.
func slackText(a Alert) string {
	text := ":rotating_light: " + a.Summary
	if a.Detail != "" {
		text += "\n```" + a.Detail + "```"
	}
	return text
}

// Mailer sends plain-text email. The SES client satisfies it.
type Mailer interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// EmailSink mails the alert detail to the market's recipients.
type EmailSink struct {
	mailer Mailer
}

// NewEmailSink wraps a mailer as an alert sink.
func NewEmailSink(m Mailer) *EmailSink { return &EmailSink{mailer: m} }

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Configured(cfg *domain.AlertConfig) bool {
	return len(cfg.EmailRecipients) > 0
}

func (s *EmailSink) Send(ctx context.Context, cfg *domain.AlertConfig, a Alert) error {
	return s.mailer.SendEmail(ctx, cfg.EmailRecipients, a.Subject, a.Detail)
}
