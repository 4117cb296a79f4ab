// Package twilio is a minimal client for the Twilio Messages API plus
// webhook signature validation. It maps Twilio error codes onto the
// engine's stable result codes so callers never branch on raw codes.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/pkg/logger"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Gateway error codes Twilio documents for message creation.
const (
	codeInvalidNumber       = 21211
	codeGeoRestricted       = 21408
	codeUnverifiedRecipient = 21608
	codeBlacklisted         = 21610
	codeAuthError           = 20003
	codeRateLimited         = 20429
)

// SendResult is one gateway outcome. Result always holds a stable
// internal code; Raise mirrors whether the client also returned an error.
type SendResult struct {
	Success   bool
	Sid       string
	Status    string
	Result    string
	ErrorCode int
	ErrorMsg  string
	SentAt    time.Time
}

// Client talks to the Twilio Messages API. Sends deliberately use a plain
// timeout client with no automatic retry: message creation is not
// idempotent on Twilio's side, and the attempt ledger already prevents a
// same-day resend.
type Client struct {
	accountSID     string
	authToken      string
	fromNumber     string
	statusCallback string
	baseURL        string
	client         *http.Client
}

// NewClient builds a client from configuration.
func NewClient(cfg config.TwilioConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		accountSID:     cfg.AccountSID,
		authToken:      cfg.AuthToken,
		fromNumber:     cfg.FromNumber,
		statusCallback: cfg.StatusCallbackURL,
		baseURL:        defaultBaseURL,
		client:         &http.Client{Timeout: timeout},
	}
}

// SetBaseURL points the client at a different API host. Tests use this.
func (c *Client) SetBaseURL(base string) { c.baseURL = strings.TrimRight(base, "/") }

// FromNumber returns the configured sending number.
func (c *Client) FromNumber() string { return c.fromNumber }

// messageResponse is the subset of Twilio's message resource we read.
// Creation errors arrive in the same shape with code/message set.
type messageResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Code         int    `json:"code"`
	Message      string `json:"message"`
}

// SendSMS posts one outbound message. Soft failures (bad number, geo
// block, blacklist, sync delivery failure) come back as a result with
// Success=false and a nil error; conditions the circuit breaker should
// count (auth, rate limit, unverified recipient, unknown errors, network
// failures) also return a non-nil error.
func (c *Client) SendSMS(ctx context.Context, to, body string) (*SendResult, error) {
	if c.accountSID == "" || c.authToken == "" {
		return nil, fmt.Errorf("twilio credentials not configured")
	}

	form := url.Values{}
	form.Add("To", to)
	form.Add("From", c.fromNumber)
	form.Add("Body", body)
	if c.statusCallback != "" {
		form.Add("StatusCallback", c.statusCallback)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var msg messageResponse
	json.Unmarshal(raw, &msg)

	if resp.StatusCode >= 400 {
		errorCode := msg.Code
		if errorCode == 0 && msg.ErrorCode != nil {
			errorCode = *msg.ErrorCode
		}
		result, raise := mapErrorCode(resp.StatusCode, errorCode)
		res := &SendResult{
			Success:   false,
			Result:    result,
			ErrorCode: errorCode,
			ErrorMsg:  msg.Message,
		}
		if res.ErrorMsg == "" {
			res.ErrorMsg = strings.TrimSpace(string(raw))
		}
		logger.Warn("twilio send rejected",
			"to", to, "http_status", resp.StatusCode, "error_code", errorCode, "result", result)
		if raise {
			return res, fmt.Errorf("twilio error %d: %s", errorCode, res.ErrorMsg)
		}
		return res, nil
	}

	// Accepted by the API. A non-null error_code or a terminal status on
	// the resource still counts as a failure.
	if msg.ErrorCode != nil && *msg.ErrorCode != 0 {
		return &SendResult{
			Success:   false,
			Sid:       msg.Sid,
			Status:    msg.Status,
			Result:    domain.ResultTwilioError,
			ErrorCode: *msg.ErrorCode,
			ErrorMsg:  msg.ErrorMessage,
		}, nil
	}
	if msg.Status == "failed" || msg.Status == "undelivered" {
		return &SendResult{
			Success:  false,
			Sid:      msg.Sid,
			Status:   msg.Status,
			Result:   domain.ResultDeliveryFailed,
			ErrorMsg: msg.ErrorMessage,
		}, nil
	}

	logger.Info("twilio send accepted", "to", to, "sid", msg.Sid, "status", msg.Status)
	return &SendResult{
		Success: true,
		Sid:     msg.Sid,
		Status:  msg.Status,
		Result:  domain.ResultSent,
		SentAt:  time.Now().UTC(),
	}, nil
}

// mapErrorCode translates a Twilio error code (with the HTTP status as
// fallback) to a stable result and whether the condition should raise.
func mapErrorCode(httpStatus, errorCode int) (string, bool) {
	switch errorCode {
	case codeInvalidNumber:
		return domain.ResultInvalidNumber, false
	case codeGeoRestricted:
		return domain.ResultGeoRestricted, false
	case codeBlacklisted:
		return domain.ResultBlacklisted, false
	case codeUnverifiedRecipient:
		return domain.ResultUnverifiedRecipient, true
	case codeAuthError:
		return domain.ResultAuthError, true
	case codeRateLimited:
		return domain.ResultRateLimited, true
	}
	if httpStatus == http.StatusTooManyRequests {
		return domain.ResultRateLimited, true
	}
	return domain.ResultTwilioError, true
}
