package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/acreage/leadline/internal/pkg/httputil"
	"github.com/acreage/leadline/internal/pkg/logger"
	"github.com/acreage/leadline/internal/repository/postgres"
	"github.com/acreage/leadline/internal/twilio"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioInbound answers POST /webhooks/twilio/inbound. Twilio retries
// on non-2xx, so processing errors return 500 and let the replay come
// back; the sid dedup makes the retry harmless.
func (h *Handlers) TwilioInbound(w http.ResponseWriter, r *http.Request) {
	if h.deps.Inbound == nil {
		unavailable(w, "inbound processing")
		return
	}
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "malformed form body")
		return
	}
	if !h.verifyTwilio(r) {
		httputil.ErrorCode(w, http.StatusForbidden, "BAD_SIGNATURE", "signature verification failed")
		return
	}

	sid := r.PostFormValue("MessageSid")
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if sid == "" || from == "" {
		httputil.BadRequest(w, "MessageSid and From are required")
		return
	}

	outcome, err := h.deps.Inbound.Process(r.Context(), sid, from, body)
	if err != nil {
		logger.Error("inbound message not processed", "sid", sid, "error", err)
		httputil.InternalError(w, err)
		return
	}
	logger.Info("inbound message processed",
		"sid", sid,
		"matched", outcome.Matched,
		"intent", outcome.Intent,
		"duplicate", outcome.Duplicate,
	)

	// Replies go out through the outreach path, never inline TwiML.
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// TwilioStatus answers POST /webhooks/twilio/status with delivery
// receipts. Only terminal statuses move the attempt row; queued/sent
// interim callbacks are ignored.
func (h *Handlers) TwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, "malformed form body")
		return
	}
	if !h.verifyTwilio(r) {
		httputil.ErrorCode(w, http.StatusForbidden, "BAD_SIGNATURE", "signature verification failed")
		return
	}

	sid := r.PostFormValue("MessageSid")
	status := r.PostFormValue("MessageStatus")
	if sid == "" {
		httputil.BadRequest(w, "MessageSid is required")
		return
	}

	var err error
	switch status {
	case "delivered":
		err = h.deps.Attempts.MarkDelivered(r.Context(), sid, time.Now().UTC())
	case "failed", "undelivered":
		reason := status
		if code := r.PostFormValue("ErrorCode"); code != "" {
			reason += " (ErrorCode " + code + ")"
		}
		err = h.deps.Attempts.MarkUndelivered(r.Context(), sid, reason)
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(err, postgres.ErrNotFound) {
		// A receipt for a message we never recorded. Log and accept so
		// Twilio stops retrying it.
		logger.Warn("delivery receipt for unknown message", "sid", sid, "status", status)
	} else if err != nil {
		httputil.InternalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// verifyTwilio checks the X-Twilio-Signature header against the exact
// URL Twilio hit. Dry-run mode skips the check so local curl tests work
// without a real auth token.
func (h *Handlers) verifyTwilio(r *http.Request) bool {
	if h.cfg.Outreach.DryRun {
		return true
	}
	return twilio.ValidateSignature(
		h.cfg.Twilio.AuthToken,
		requestURL(r),
		r.PostForm,
		r.Header.Get("X-Twilio-Signature"),
	)
}

// requestURL reconstructs the public URL for signature checking. Behind
// a proxy the original scheme rides in X-Forwarded-Proto.
func requestURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
