package sms

import (
	"strings"
	"testing"

	"github.com/acreage/leadline/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }

func TestOutreach_Intro(t *testing.T) {
	e := NewEngine()

	body, err := e.Outreach(domain.ContextIntro, Params{
		FirstName: "Earl",
		Parish:    "CADDO",
		Acres:     floatPtr(11.5),
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"Earl", "11.5 acres", "Caddo Parish", "STOP"} {
		if !strings.Contains(body, want) {
			t.Errorf("intro missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "{{") || strings.Contains(body, "{%") {
		t.Errorf("unrendered liquid in body: %s", body)
	}
}

func TestOutreach_IntroDefaults(t *testing.T) {
	e := NewEngine()

	// Sparse roll row: no name, no acreage, no parish.
	body, err := e.Outreach(domain.ContextIntro, Params{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"Hi there", "some land", "your area"} {
		if !strings.Contains(body, want) {
			t.Errorf("intro missing default %q: %s", want, body)
		}
	}
}

func TestOutreach_FollowupVariesByNumber(t *testing.T) {
	e := NewEngine()

	first, err := e.Outreach(domain.ContextFollowup, Params{
		FirstName: "Mae", Parish: "Bossier", Acres: floatPtr(3), FollowupNo: 1,
	})
	if err != nil {
		t.Fatalf("render followup 1: %v", err)
	}
	third, err := e.Outreach(domain.ContextFollowup, Params{
		FirstName: "Mae", Parish: "Bossier", Acres: floatPtr(3), FollowupNo: 3,
	})
	if err != nil {
		t.Fatalf("render followup 3: %v", err)
	}

	if first == third {
		t.Errorf("expected followup wording to vary with the touch number")
	}
	if !strings.Contains(first, "following up") {
		t.Errorf("first followup body: %s", first)
	}
	if !strings.Contains(third, "checking back") {
		t.Errorf("later followup body: %s", third)
	}
}

func TestOutreach_Final(t *testing.T) {
	e := NewEngine()

	body, err := e.Outreach(domain.ContextFinal, Params{FirstName: "Ray", Parish: "Webster"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "last message") {
		t.Errorf("final body: %s", body)
	}
}

func TestOutreach_UnknownContext(t *testing.T) {
	e := NewEngine()
	if _, err := e.Outreach(domain.MessageContext("bulk"), Params{}); err == nil {
		t.Fatal("expected error for unknown context")
	}
}

func TestOptOutAck_FixedWording(t *testing.T) {
	e := NewEngine()

	body, err := e.OptOutAck()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(body, "removed") || !strings.Contains(body, "won't be contacted again") {
		t.Errorf("ack body: %s", body)
	}
}

func TestBuyerBlast(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name string
		p    Params
		want []string
		skip []string
	}{
		{
			name: "with asking price",
			p:    Params{Parish: "DESOTO", Acres: floatPtr(22), Asking: 38500},
			want: []string{"22 acres", "Desoto Parish", "$38,500", "Reply YES"},
		},
		{
			name: "no price yet",
			p:    Params{Parish: "Caddo", Acres: floatPtr(5)},
			want: []string{"5 acres", "Caddo Parish"},
			skip: []string{"asking", "$"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := e.BuyerBlast(tt.p)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("blast missing %q: %s", w, body)
				}
			}
			for _, s := range tt.skip {
				if strings.Contains(body, s) {
					t.Errorf("blast should not contain %q: %s", s, body)
				}
			}
		})
	}
}

func TestCallScript(t *testing.T) {
	e := NewEngine()

	body, err := e.CallScript(Params{
		FirstName: "Earl",
		Parish:    "CADDO",
		Acres:     floatPtr(11.5),
		OfferLow:  12400,
		OfferHigh: 16800,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{"$12,400", "$16,800", "OPENING", "OBJECTIONS", "public record"} {
		if !strings.Contains(body, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if !strings.Contains(body, "\n") {
		t.Error("call script should keep line structure")
	}

	// Without an offer the script falls back to the comps line.
	noOffer, err := e.CallScript(Params{FirstName: "Earl", Parish: "Caddo"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(noOffer, "pull comps") {
		t.Errorf("script without offer: %s", noOffer)
	}
}

func TestRender_CachesParsedTemplates(t *testing.T) {
	e := NewEngine()

	out1, err := e.Render("greet", `Hi {{ name }}`, map[string]interface{}{"name": "Ann"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	// Second render with the same key must hit the cache and still
	// apply the new context.
	out2, err := e.Render("greet", `IGNORED {{ name }}`, map[string]interface{}{"name": "Bo"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out1 != "Hi Ann" || out2 != "Hi Bo" {
		t.Errorf("got %q, %q", out1, out2)
	}

	e.ClearCache()
	out3, err := e.Render("greet", `Now {{ name }}`, map[string]interface{}{"name": "Cy"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out3 != "Now Cy" {
		t.Errorf("after ClearCache got %q", out3)
	}
}

func TestParse_RejectsBadSyntax(t *testing.T) {
	e := NewEngine()
	if err := e.Parse(`{% if %}`); err == nil {
		t.Fatal("expected syntax error")
	}
	if err := e.Parse(`Hello {{ name }}`); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
}

func TestFilters(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		tpl  string
		ctx  map[string]interface{}
		want string
	}{
		{`{{ a | acres }}`, map[string]interface{}{"a": 1.0}, "1 acre"},
		{`{{ a | acres }}`, map[string]interface{}{"a": 0.25}, "0.25 acres"},
		{`{{ a | acres }}`, map[string]interface{}{"a": 40.0}, "40 acres"},
		{`{{ v | currency }}`, map[string]interface{}{"v": 1250000.0}, "$1,250,000"},
		{`{{ v | currency }}`, map[string]interface{}{"v": 900}, "$900"},
		{`{{ p | titlecase }}`, map[string]interface{}{"p": "EAST BATON ROUGE"}, "East Baton Rouge"},
		{`{{ s | truncate: 8 }}`, map[string]interface{}{"s": "hello world"}, "hello..."},
		{`{{ missing | default: "x" }}`, map[string]interface{}{}, "x"},
	}

	for _, tt := range tests {
		got, err := e.Render("", tt.tpl, tt.ctx)
		if err != nil {
			t.Fatalf("%s: %v", tt.tpl, err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.tpl, got, tt.want)
		}
	}
}

func TestSegments(t *testing.T) {
	if got := Segments(""); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := Segments(strings.Repeat("a", 160)); got != 1 {
		t.Errorf("160 chars = %d", got)
	}
	if got := Segments(strings.Repeat("a", 161)); got != 2 {
		t.Errorf("161 chars = %d", got)
	}
	if got := Segments(strings.Repeat("a", 306)); got != 2 {
		t.Errorf("306 chars = %d", got)
	}
	if got := Segments(strings.Repeat("a", 307)); got != 3 {
		t.Errorf("307 chars = %d", got)
	}
}
