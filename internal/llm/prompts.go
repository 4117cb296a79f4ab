package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MessageParams carries the lead facts a drafted SMS may mention.
type MessageParams struct {
	Context    string // intro, followup, final
	FirstName  string
	Parish     string
	Acres      *float64
	FollowupNo int
}

// Classification is the structured judgment of one owner reply.
type Classification struct {
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	Sentiment    string  `json:"sentiment"`
	ActionNeeded string  `json:"action_needed"`
}

const messageSystemPrompt = `You write one short, friendly SMS (under 300 characters) from a local
land buyer to a property owner. Plain conversational English, no
marketing language, no emojis, no links. Always mention the county or
parish. End with a soft question. Output only the message text.`

const classifySystemPrompt = `You classify an SMS reply from a property owner who was asked about
selling vacant land. Respond with only a JSON object:
{"intent": one of INTERESTED, NOT_INTERESTED, ASKING_PRICE, NEGOTIATING,
SCHEDULING, CONFUSED, STOP, WRONG_NUMBER, DECEASED, SPAM, GREETING,
QUESTION; "confidence": 0.0-1.0; "sentiment": positive, neutral, or
negative; "action_needed": one short sentence}`

const describeSystemPrompt = `You write a two-sentence investment summary of a vacant land deal for a
cash buyer. Factual, concrete, no hype words, no exclamation marks.
Output only the summary.`

// DraftMessage asks the model for outreach copy. Callers fall back to the
// deterministic templates when this fails.
func (c *Client) DraftMessage(ctx context.Context, p MessageParams) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Message type: %s.", p.Context)
	if p.FollowupNo > 0 {
		fmt.Fprintf(&b, " This is followup number %d; keep it shorter than the first message.", p.FollowupNo)
	}
	if p.FirstName != "" {
		fmt.Fprintf(&b, " Owner first name: %s.", p.FirstName)
	}
	if p.Parish != "" {
		fmt.Fprintf(&b, " Parish: %s.", p.Parish)
	}
	if p.Acres != nil {
		fmt.Fprintf(&b, " The land is %.2f acres.", *p.Acres)
	}

	msg, err := c.Complete(ctx, messageSystemPrompt, b.String(), 0.7, 150)
	if err != nil {
		return "", err
	}
	if msg == "" {
		return "", fmt.Errorf("llm returned empty message")
	}
	return msg, nil
}

// ClassifyReply asks the model to judge an owner reply. The last outbound
// message is passed as context when available.
func (c *Client) ClassifyReply(ctx context.Context, reply, lastOutbound string) (*Classification, error) {
	var b strings.Builder
	if lastOutbound != "" {
		fmt.Fprintf(&b, "Our last message: %q\n", lastOutbound)
	}
	fmt.Fprintf(&b, "Owner reply: %q", reply)

	raw, err := c.Complete(ctx, classifySystemPrompt, b.String(), 0.0, 200)
	if err != nil {
		return nil, err
	}

	var cls Classification
	if err := json.Unmarshal(extractJSON(raw), &cls); err != nil {
		return nil, fmt.Errorf("parse classification %q: %w", truncate(raw, 120), err)
	}
	cls.Intent = strings.ToUpper(strings.TrimSpace(cls.Intent))
	if cls.Intent == "" {
		return nil, fmt.Errorf("classification missing intent")
	}
	if cls.Confidence < 0 || cls.Confidence > 1 {
		cls.Confidence = 0.5
	}
	return &cls, nil
}

// DescribeDeal asks the model for a short buyer-facing summary of deal
// facts (already serialized by the caller).
func (c *Client) DescribeDeal(ctx context.Context, facts string) (string, error) {
	out, err := c.Complete(ctx, describeSystemPrompt, facts, 0.4, 160)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("llm returned empty description")
	}
	return out, nil
}

// extractJSON pulls the outermost JSON object out of a completion that
// may wrap it in prose or code fences.
func extractJSON(s string) []byte {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return []byte(s)
	}
	return []byte(s[start : end+1])
}
