package sms

import (
	"fmt"

	"github.com/acreage/leadline/internal/domain"
)

// Built-in template names. These double as cache keys.
const (
	TemplateIntro      = "intro"
	TemplateFollowup   = "followup"
	TemplateFinal      = "final"
	TemplateOptOutAck  = "opt_out_ack"
	TemplateBuyerBlast = "buyer_blast"
	TemplateCallScript = "call_script"
)

// builtins holds the deterministic template set. Wording is kept
// deliberately plain; carrier filtering punishes anything that reads
// like bulk marketing.
var builtins = map[string]string{
	TemplateIntro: `Hi {{ first_name | default: "there" }}, I'm a local land buyer and I noticed you own {{ acres | acres | default: "some land" }} in {% if parish != "" %}{{ parish | titlecase }} Parish{% else %}your area{% endif %}. Would you consider a cash offer? No fees, no listing. Reply STOP to opt out.`,

	TemplateFollowup: `{% if followup_no <= 1 %}Hi {{ first_name | default: "there" }}, just following up on my note about your {{ acres | acres | default: "land" }} in {% if parish != "" %}{{ parish | titlecase }} Parish{% else %}your area{% endif %}. Still happy to put a cash offer together if you're open to it.{% else %}Hi {{ first_name | default: "there" }}, checking back about your land in {% if parish != "" %}{{ parish | titlecase }} Parish{% else %}your area{% endif %}. No pressure either way, but I can send a number over whenever you like.{% endif %}`,

	TemplateFinal: `Hi {{ first_name | default: "there" }}, this is my last message about your land in {% if parish != "" %}{{ parish | titlecase }} Parish{% else %}your area{% endif %}. If you ever want a no-obligation cash offer, just reply here. Thanks for your time.`,

	TemplateOptOutAck: `You've been removed from our list and won't be contacted again. Sorry for the trouble.`,

	TemplateBuyerBlast: `New off-market deal: {{ acres | acres | default: "land" }}{% if parish != "" %} in {{ parish | titlecase }} Parish{% endif %}{% if asking %}, asking {{ asking | currency }}{% endif %}. Reply YES for the full deal sheet.`,

	TemplateCallScript: `CALL PREP: {{ first_name | default: "owner" }}, {{ parish | titlecase }} Parish
Property: {{ acres | acres | default: "acreage unknown" }}{% if offer_low %}, target range {{ offer_low | currency }} to {{ offer_high | currency }}{% endif %}

OPENING
"Hi, is this {{ first_name | default: "the owner" }}? I sent you a text about the land you own out in {{ parish | titlecase }} Parish. Do you have two minutes?"

IF ASKED FOR A NUMBER
{% if offer_low %}"Based on what we're seeing, somewhere between {{ offer_low | currency }} and {{ offer_high | currency }}, depending on access and condition. I'd need to confirm a couple of things first."{% else %}"I'd need to pull comps before I give you a number, but I can have one for you within a day."{% endif %}

OBJECTIONS
- "It's worth more": agree, ask what they'd take, write it down.
- "How did you get my number": county tax roll, it's public record, offer to remove them.
- "Not interested": thank them, confirm removal, end the call.

CLOSING
"I'll text you a written offer so you have it in front of you. Sound fair?"`,
}

// Params carries the variables the built-in templates accept. The
// outreach fallback uses FirstName, Parish, Acres and FollowupNo; the
// blast and call script add pricing.
type Params struct {
	FirstName  string
	Parish     string
	Acres      *float64
	FollowupNo int
	Asking     float64
	OfferLow   float64
	OfferHigh  float64
}

func (p Params) context() map[string]interface{} {
	ctx := map[string]interface{}{
		"first_name":  p.FirstName,
		"parish":      p.Parish,
		"followup_no": p.FollowupNo,
	}
	if p.Acres != nil && *p.Acres > 0 {
		ctx["acres"] = *p.Acres
	}
	if p.Asking > 0 {
		ctx["asking"] = p.Asking
	}
	if p.OfferLow > 0 {
		ctx["offer_low"] = p.OfferLow
		ctx["offer_high"] = p.OfferHigh
	}
	return ctx
}

// RenderBuiltin renders one of the named built-in templates.
func (e *Engine) RenderBuiltin(name string, p Params) (string, error) {
	tpl, ok := builtins[name]
	if !ok {
		return "", fmt.Errorf("sms: unknown template %q", name)
	}
	return e.Render(name, tpl, p.context())
}

// Outreach renders the cadence template for a message context. This is
// the deterministic fallback the dispatcher uses when no override body
// is supplied and AI drafting is off or failing.
func (e *Engine) Outreach(mc domain.MessageContext, p Params) (string, error) {
	switch mc {
	case domain.ContextIntro:
		return e.RenderBuiltin(TemplateIntro, p)
	case domain.ContextFollowup:
		return e.RenderBuiltin(TemplateFollowup, p)
	case domain.ContextFinal:
		return e.RenderBuiltin(TemplateFinal, p)
	default:
		return "", fmt.Errorf("sms: no template for context %q", mc)
	}
}

// OptOutAck is the single acknowledgement sent after a STOP. Fixed
// wording; never AI-generated.
func (e *Engine) OptOutAck() (string, error) {
	return e.RenderBuiltin(TemplateOptOutAck, Params{})
}

// BuyerBlast renders the one-line deal teaser sent to matched buyers.
func (e *Engine) BuyerBlast(p Params) (string, error) {
	return e.RenderBuiltin(TemplateBuyerBlast, p)
}

// CallScript renders the multi-line call prep script for the API prep
// pack.
func (e *Engine) CallScript(p Params) (string, error) {
	return e.RenderBuiltin(TemplateCallScript, p)
}
