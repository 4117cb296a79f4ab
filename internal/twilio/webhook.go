package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// Signature computes the X-Twilio-Signature value for a request: the
// full URL concatenated with every POST parameter (sorted by name, name
// then value), HMAC-SHA1 signed with the auth token, base64 encoded.
func Signature(authToken, requestURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := requestURL
	for _, k := range keys {
		for _, v := range form[k] {
			payload += k + v
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks an inbound webhook's X-Twilio-Signature in
// constant time. An empty auth token rejects everything: an unvalidated
// webhook endpoint is worse than a dead one.
func ValidateSignature(authToken, requestURL string, form url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	expected := Signature(authToken, requestURL, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}
