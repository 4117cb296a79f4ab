package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/acreage/leadline/internal/domain"
	"github.com/acreage/leadline/internal/llm"
	"github.com/acreage/leadline/internal/pkg/breaker"
	"github.com/acreage/leadline/internal/pkg/logger"
)

// Replier is the LLM classification contract. Satisfied by *llm.Client.
type Replier interface {
	ClassifyReply(ctx context.Context, reply, lastOutbound string) (*llm.Classification, error)
}

// Verdict is one classified reply. Source records which tier decided:
// keyword, llm, or fallback.
type Verdict struct {
	Intent     domain.Intent
	Confidence float64
	Sentiment  string
	Source     string
}

// Classifier resolves reply intent keyword-first, with an LLM second
// opinion only for messages the keywords cannot place. Keyword hits are
// cheap, deterministic, and cover the replies that matter most for
// compliance, so they always win.
type Classifier struct {
	replier  Replier
	breakers *breaker.Manager
}

// NewClassifier builds a classifier. replier may be nil: keyword misses
// then fall back to CONFUSED instead of calling a model.
func NewClassifier(replier Replier, breakers *breaker.Manager) *Classifier {
	return &Classifier{replier: replier, breakers: breakers}
}

const (
	keywordConfidence  = 0.95
	fallbackConfidence = 0.3
)

// Bare carrier keywords only bind in short replies: "STOP" or "yes
// stop" is an opt-out, "stop by anytime" is an invitation. Three words
// mirrors how carriers treat reserved-word messages.
const shortReplyWords = 3

var stopWords = map[string]bool{
	"stop":    true,
	"stopall": true,
	"cancel":  true,
	"end":     true,
	"quit":    true,
}

var stopPhrases = []string{
	"unsubscribe", "remove me", "take me off", "opt out",
	"do not contact", "dont contact", "do not text", "dont text",
	"stop texting", "stop messaging", "stop contacting",
	"leave me alone",
}

var deceasedPhrases = []string{
	"deceased", "passed away", "passed on", "he died", "she died",
	"no longer with us", "is dead",
}

var wrongNumberPhrases = []string{
	"wrong number", "wrong person", "dont own", "do not own",
	"never owned", "not my property", "not the owner", "sold that",
	"sold it years",
}

var notInterestedPhrases = []string{
	"not interested", "no thanks", "no thank you", "not selling",
	"not for sale", "dont want to sell", "do not want to sell",
	"keeping it", "not right now",
}

var interestedPhrases = []string{
	"interested", "make me an offer", "make an offer", "call me",
	"tell me more", "lets talk", "might sell", "would sell",
	"depends on", "maybe",
}

var interestedWords = map[string]bool{
	"yes":  true,
	"sure": true,
	"yeah": true,
	"ok":   true,
	"okay": true,
}

var priceMarkers = []string{
	"how much", "price", "offer", "worth", "$", "what would you pay",
	"per acre", "value",
}

// Classify places one reply. lastOutbound is the message the owner is
// answering; it goes to the model as context and is ignored by keywords.
func (c *Classifier) Classify(ctx context.Context, reply, lastOutbound string) Verdict {
	if v, ok := classifyKeywords(reply); ok {
		return v
	}
	return c.classifyLLM(ctx, reply, lastOutbound)
}

// classifyKeywords runs the deterministic tiers in priority order. The
// order is load-bearing: "no, not interested in selling" must land on
// NOT_INTERESTED even though "selling" alone reads as interest.
func classifyKeywords(reply string) (Verdict, bool) {
	normalized := normalizeReply(reply)
	if normalized == "" {
		return Verdict{}, false
	}
	tokens := strings.Fields(normalized)
	short := len(tokens) <= shortReplyWords

	keyword := func(intent domain.Intent) (Verdict, bool) {
		return Verdict{Intent: intent, Confidence: keywordConfidence, Source: "keyword"}, true
	}

	if (short && anyWord(tokens, stopWords)) || anyPhrase(normalized, stopPhrases) {
		return keyword(domain.IntentStop)
	}
	if anyPhrase(normalized, deceasedPhrases) {
		return keyword(domain.IntentDeceased)
	}
	if anyPhrase(normalized, wrongNumberPhrases) {
		return keyword(domain.IntentWrongNumber)
	}
	if anyPhrase(normalized, notInterestedPhrases) {
		return keyword(domain.IntentNotInterested)
	}
	if anyPhrase(normalized, interestedPhrases) || (short && anyWord(tokens, interestedWords)) {
		if anyPhrase(normalized, priceMarkers) {
			return keyword(domain.IntentAskingPrice)
		}
		return keyword(domain.IntentInterested)
	}
	if anyPhrase(normalized, priceMarkers) {
		return keyword(domain.IntentAskingPrice)
	}
	return Verdict{}, false
}

func (c *Classifier) classifyLLM(ctx context.Context, reply, lastOutbound string) Verdict {
	fallback := Verdict{Intent: domain.IntentConfused, Confidence: fallbackConfidence, Source: "fallback"}
	if c.replier == nil {
		return fallback
	}

	var cls *llm.Classification
	call := func() error {
		var err error
		cls, err = c.replier.ClassifyReply(ctx, reply, lastOutbound)
		return err
	}
	var err error
	if c.breakers != nil {
		err = c.breakers.Get("llm").Do(call)
	} else {
		err = call()
	}
	if err != nil {
		if !errors.Is(err, llm.ErrDisabled) {
			logger.Warn("llm classification failed", "error", err)
		}
		return fallback
	}

	intent := domain.Intent(strings.ToUpper(strings.TrimSpace(cls.Intent)))
	if !validIntent(intent) {
		logger.Warn("llm returned unknown intent", "intent", cls.Intent)
		return fallback
	}
	return Verdict{
		Intent:     intent,
		Confidence: cls.Confidence,
		Sentiment:  cls.Sentiment,
		Source:     "llm",
	}
}

func validIntent(i domain.Intent) bool {
	switch i {
	case domain.IntentInterested, domain.IntentNotInterested, domain.IntentAskingPrice,
		domain.IntentNegotiating, domain.IntentScheduling, domain.IntentConfused,
		domain.IntentStop, domain.IntentWrongNumber, domain.IntentDeceased,
		domain.IntentSpam, domain.IntentGreeting, domain.IntentQuestion:
		return true
	}
	return false
}

// normalizeReply lowercases and strips punctuation so "Stop!" and
// "don't" match the tables.
func normalizeReply(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '$':
			b.WriteRune(r)
		case r == '\n' || r == '\t':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func anyWord(tokens []string, table map[string]bool) bool {
	for _, w := range tokens {
		if table[w] {
			return true
		}
	}
	return false
}

func anyPhrase(normalized string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
