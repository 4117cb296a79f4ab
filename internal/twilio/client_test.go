package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/acreage/leadline/internal/config"
	"github.com/acreage/leadline/internal/domain"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(config.TwilioConfig{
		AccountSID:     "AC_test",
		AuthToken:      "token",
		FromNumber:     "+15005550006",
		TimeoutSeconds: 5,
	})
	c.SetBaseURL(serverURL)
	return c
}

func TestSendSMS_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostFormValue("To"); got != "+15555550100" {
			t.Errorf("To = %q", got)
		}
		if user, _, _ := r.BasicAuth(); user != "AC_test" {
			t.Errorf("basic auth user = %q", user)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM123","status":"queued","error_code":null,"error_message":null}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).SendSMS(context.Background(), "+15555550100", "hello")
	if err != nil {
		t.Fatalf("SendSMS() error: %v", err)
	}
	if !res.Success || res.Sid != "SM123" || res.Result != domain.ResultSent {
		t.Errorf("result = %+v, want success/SM123/sent", res)
	}
}

func TestSendSMS_SoftFailures(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		body       string
		wantResult string
	}{
		{"invalid number", 400, `{"code":21211,"message":"invalid 'To' number"}`, domain.ResultInvalidNumber},
		{"geo restricted", 400, `{"code":21408,"message":"permission not enabled for region"}`, domain.ResultGeoRestricted},
		{"blacklisted", 400, `{"code":21610,"message":"recipient unsubscribed"}`, domain.ResultBlacklisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.httpStatus)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).SendSMS(context.Background(), "+15555550100", "hello")
			if err != nil {
				t.Fatalf("soft failure should not raise, got: %v", err)
			}
			if res.Success {
				t.Error("Success = true on failure response")
			}
			if res.Result != tt.wantResult {
				t.Errorf("Result = %q, want %q", res.Result, tt.wantResult)
			}
		})
	}
}

func TestSendSMS_RaisingFailures(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
		body       string
		wantResult string
	}{
		{"auth error", 401, `{"code":20003,"message":"authenticate"}`, domain.ResultAuthError},
		{"unverified recipient", 400, `{"code":21608,"message":"unverified number"}`, domain.ResultUnverifiedRecipient},
		{"rate limited code", 429, `{"code":20429,"message":"too many requests"}`, domain.ResultRateLimited},
		{"rate limited http only", 429, `{}`, domain.ResultRateLimited},
		{"unknown error", 500, `{"code":99999,"message":"boom"}`, domain.ResultTwilioError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.httpStatus)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).SendSMS(context.Background(), "+15555550100", "hello")
			if err == nil {
				t.Fatal("raising failure returned nil error")
			}
			if res == nil || res.Result != tt.wantResult {
				t.Errorf("result = %+v, want %q", res, tt.wantResult)
			}
		})
	}
}

func TestSendSMS_AcceptedWithErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM77","status":"queued","error_code":30007,"error_message":"filtered"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).SendSMS(context.Background(), "+15555550100", "hello")
	if err != nil {
		t.Fatalf("accepted-with-error should not raise, got: %v", err)
	}
	if res.Success || res.Result != domain.ResultTwilioError {
		t.Errorf("result = %+v, want failed/twilio_error", res)
	}
}

func TestValidateSignature(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15555550100")
	form.Set("Body", "STOP")

	reqURL := "https://example.com/webhooks/twilio/inbound"
	sig := Signature("token", reqURL, form)

	if !ValidateSignature("token", reqURL, form, sig) {
		t.Error("valid signature rejected")
	}
	if ValidateSignature("token", reqURL, form, sig+"x") {
		t.Error("tampered signature accepted")
	}
	if ValidateSignature("other-token", reqURL, form, sig) {
		t.Error("signature from wrong token accepted")
	}
	if ValidateSignature("", reqURL, form, sig) {
		t.Error("empty auth token must reject")
	}

	// Any parameter change invalidates the signature.
	form.Set("Body", "YES")
	if ValidateSignature("token", reqURL, form, sig) {
		t.Error("signature accepted after body change")
	}
}
