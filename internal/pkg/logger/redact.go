package logger

import "regexp"

var phoneRegex = regexp.MustCompile(`\+?1?\d{10,14}`)

// RedactPhone masks a phone number for safe logging, keeping only the
// last four digits: "+15125551234" → "***1234". Values too short to be a
// number are fully masked.
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return "***"
	}
	tail := phone[len(phone)-4:]
	return "***" + tail
}
