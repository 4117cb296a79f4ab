package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/acreage/leadline/internal/config"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
		w.Write(body)
	}))
}

func newTestLLM(srvURL string) *Client {
	c := NewClient(config.OpenAIConfig{
		Provider:       "openai",
		APIKey:         "key",
		Model:          "gpt-4o-mini",
		BaseURL:        srvURL,
		TimeoutSeconds: 5,
	})
	return c
}

func TestClassifyReply_ParsesJSON(t *testing.T) {
	srv := completionServer(t, `Here you go:
{"intent":"interested","confidence":0.92,"sentiment":"positive","action_needed":"call the owner"}`)
	defer srv.Close()

	cls, err := newTestLLM(srv.URL).ClassifyReply(context.Background(), "yes how much", "")
	if err != nil {
		t.Fatalf("ClassifyReply() error: %v", err)
	}
	if cls.Intent != "INTERESTED" {
		t.Errorf("Intent = %q, want INTERESTED (uppercased)", cls.Intent)
	}
	if cls.Confidence != 0.92 {
		t.Errorf("Confidence = %v", cls.Confidence)
	}
}

func TestClassifyReply_GarbageFails(t *testing.T) {
	srv := completionServer(t, "sorry, I can't help with that")
	defer srv.Close()

	if _, err := newTestLLM(srv.URL).ClassifyReply(context.Background(), "yes", ""); err == nil {
		t.Error("ClassifyReply() on non-JSON output should error so the caller falls back")
	}
}

func TestDraftMessage_Disabled(t *testing.T) {
	c := NewClient(config.OpenAIConfig{Provider: "none"})
	if _, err := c.DraftMessage(context.Background(), MessageParams{Context: "intro"}); err != ErrDisabled {
		t.Errorf("disabled client error = %v, want ErrDisabled", err)
	}
}

func TestComplete_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	if _, err := newTestLLM(srv.URL).Complete(context.Background(), "s", "u", 0, 10); err == nil {
		t.Error("Complete() should surface API error field")
	}
}
