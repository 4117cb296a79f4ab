// Package phone normalizes raw US phone numbers to E.164 and applies the
// likely-mobile screen used by the TCPA gate. It deliberately handles only
// NANP numbers; county rolls do not carry international contacts.
package phone

import (
	"strings"
)

// Toll-free prefixes are never consumer mobile numbers. Texting them is
// both pointless and a compliance risk, so they fail the mobile screen.
var tollFreePrefixes = map[string]bool{
	"800": true,
	"833": true,
	"844": true,
	"855": true,
	"866": true,
	"877": true,
	"888": true,
}

// Normalize converts a raw phone string to E.164 (+1XXXXXXXXXX).
// Returns ("", false) when the input cannot be a valid NANP number.
func Normalize(raw string) (string, bool) {
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
		} else if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	s := strings.TrimPrefix(b.String(), "+")

	switch {
	case len(s) == 11 && s[0] == '1':
		s = s[1:]
	case len(s) == 10:
	default:
		return "", false
	}

	// NANP: area code and exchange cannot start with 0 or 1.
	if s[0] == '0' || s[0] == '1' || s[3] == '0' || s[3] == '1' {
		return "", false
	}

	return "+1" + s, true
}

// LikelyMobile reports whether an E.164 number passes the mobile screen:
// a valid normalized number whose area code is not toll-free. Carrier
// lookup is out of reach here; the prefix test is the deterministic
// stand-in the TCPA gate relies on.
func LikelyMobile(e164 string) bool {
	if !strings.HasPrefix(e164, "+1") || len(e164) != 12 {
		return false
	}
	return !tollFreePrefixes[e164[2:5]]
}

// NormalizeMobile combines Normalize and LikelyMobile: it returns the
// E.164 form plus whether the number is textable.
func NormalizeMobile(raw string) (e164 string, mobile bool) {
	e164, ok := Normalize(raw)
	if !ok {
		return "", false
	}
	return e164, LikelyMobile(e164)
}
