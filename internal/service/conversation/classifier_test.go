package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pkg/breaker"
)

type fakeReplier struct {
	cls          *llm.Classification
	err          error
	calls        int
	lastReply    string
	lastOutbound string
}

func (f *fakeReplier) ClassifyReply(_ context.Context, reply, lastOutbound string) (*llm.Classification, error) {
	f.calls++
	f.lastReply = reply
	f.lastOutbound = lastOutbound
	return f.cls, f.err
}

func TestClassify_Keywords(t *testing.T) {
	tests := []struct {
		reply string
		want  domain.Intent
	}{
		{"STOP", domain.IntentStop},
		{"Stop!", domain.IntentStop},
		{"please remove me from your list", domain.IntentStop},
		{"Do not text me again", domain.IntentStop},
		{"UNSUBSCRIBE", domain.IntentStop},
		{"He passed away last spring", domain.IntentDeceased},
		{"my father is deceased", domain.IntentDeceased},
		{"you have the wrong number", domain.IntentWrongNumber},
		{"I don't own that property", domain.IntentWrongNumber},
		{"Not interested, thanks", domain.IntentNotInterested},
		{"no thanks we are keeping it", domain.IntentNotInterested},
		{"It's not for sale", domain.IntentNotInterested},
		{"Yes", domain.IntentInterested},
		{"sure, call me tomorrow", domain.IntentInterested},
		{"I might sell depending on the offer", domain.IntentAskingPrice},
		{"How much are you offering?", domain.IntentAskingPrice},
		{"what's it worth to you", domain.IntentAskingPrice},
		{"$50k and it's yours", domain.IntentAskingPrice},
	}
	c := NewClassifier(nil, nil)
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			v := c.Classify(context.Background(), tt.reply, "")
			if v.Intent != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.reply, v.Intent, tt.want)
			}
			if v.Source != "keyword" {
				t.Errorf("source = %s, want keyword", v.Source)
			}
			if v.Confidence != keywordConfidence {
				t.Errorf("confidence = %.2f, want %.2f", v.Confidence, keywordConfidence)
			}
		})
	}
}

// Priority is part of the contract: a mixed message takes the most
// binding interpretation.
func TestClassify_PriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.Intent
	}{
		{"stop beats interest", "interested but STOP texting me", domain.IntentStop},
		{"deceased beats wrong number", "he passed away, wrong number", domain.IntentDeceased},
		{"not interested beats interested", "no, not interested in selling", domain.IntentNotInterested},
		{"stop by is not an opt out", "stop by anytime, I am interested", domain.IntentInterested},
	}
	c := NewClassifier(nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if v := c.Classify(context.Background(), tt.reply, ""); v.Intent != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.reply, v.Intent, tt.want)
			}
		})
	}
}

func TestClassify_NoReplierFallsBack(t *testing.T) {
	c := NewClassifier(nil, nil)
	v := c.Classify(context.Background(), "hmm let me think about it", "")
	if v.Intent != domain.IntentConfused {
		t.Errorf("intent = %s, want CONFUSED", v.Intent)
	}
	if v.Confidence != fallbackConfidence {
		t.Errorf("confidence = %.2f, want %.2f", v.Confidence, fallbackConfidence)
	}
	if v.Source != "fallback" {
		t.Errorf("source = %s, want fallback", v.Source)
	}
}

func TestClassify_LLMPath(t *testing.T) {
	replier := &fakeReplier{cls: &llm.Classification{
		Intent:     "question",
		Confidence: 0.82,
		Sentiment:  "neutral",
	}}
	c := NewClassifier(replier, nil)

	v := c.Classify(context.Background(), "is this about the land on route 4?", "Hi John, would you consider an offer?")
	if v.Intent != domain.IntentQuestion {
		t.Errorf("intent = %s, want QUESTION", v.Intent)
	}
	if v.Confidence != 0.82 || v.Source != "llm" {
		t.Errorf("verdict = %+v, want llm source with model confidence", v)
	}
	if replier.lastOutbound != "Hi John, would you consider an offer?" {
		t.Errorf("model did not receive the last outbound message")
	}
}

func TestClassify_KeywordHitSkipsLLM(t *testing.T) {
	replier := &fakeReplier{cls: &llm.Classification{Intent: "INTERESTED", Confidence: 0.9}}
	c := NewClassifier(replier, nil)

	c.Classify(context.Background(), "STOP", "")
	if replier.calls != 0 {
		t.Errorf("llm calls = %d, want 0 for a keyword hit", replier.calls)
	}
}

func TestClassify_LLMErrorFallsBack(t *testing.T) {
	replier := &fakeReplier{err: errors.New("model overloaded")}
	c := NewClassifier(replier, nil)

	v := c.Classify(context.Background(), "???", "")
	if v.Intent != domain.IntentConfused || v.Confidence != fallbackConfidence {
		t.Errorf("verdict = %+v, want CONFUSED fallback", v)
	}
}

func TestClassify_UnknownModelIntentFallsBack(t *testing.T) {
	replier := &fakeReplier{cls: &llm.Classification{Intent: "SHRUG", Confidence: 0.9}}
	c := NewClassifier(replier, nil)

	if v := c.Classify(context.Background(), "eh", ""); v.Intent != domain.IntentConfused {
		t.Errorf("intent = %s, want CONFUSED for unknown model output", v.Intent)
	}
}

func TestClassify_OpenBreakerFallsBack(t *testing.T) {
	replier := &fakeReplier{err: errors.New("timeout")}
	breakers := breaker.NewManager(1, time.Minute)
	c := NewClassifier(replier, breakers)

	// First failure opens the circuit; the second call must not reach
	// the model.
	c.Classify(context.Background(), "mystery one", "")
	calls := replier.calls
	v := c.Classify(context.Background(), "mystery two", "")
	if replier.calls != calls {
		t.Errorf("llm calls grew to %d with an open circuit", replier.calls)
	}
	if v.Intent != domain.IntentConfused || v.Source != "fallback" {
		t.Errorf("verdict = %+v, want CONFUSED fallback", v)
	}
}
