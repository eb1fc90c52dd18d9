// Package normalizers provides the canonical keys used for identity lookups
// and case-insensitive comparisons.
package normalizers

import (
	"strings"
	"unicode"
)

// NormalizeEmailKey trims and lower-cases an email. Blank input yields ("", false).
func NormalizeEmailKey(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", false
	}
	return key, true
}

// NormalizePhoneKey keeps one leading '+' and every digit. Input without
// digits yields ("", false).
func NormalizePhoneKey(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	var b strings.Builder
	if strings.HasPrefix(trimmed, "+") {
		b.WriteByte('+')
	}
	digits := 0
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			digits++
		}
	}
	if digits == 0 {
		return "", false
	}
	return b.String(), true
}

// EmailKey is NormalizeEmailKey without the presence flag.
func EmailKey(raw string) string {
	key, _ := NormalizeEmailKey(raw)
	return key
}

// PhoneKey is NormalizePhoneKey without the presence flag.
func PhoneKey(raw string) string {
	key, _ := NormalizePhoneKey(raw)
	return key
}

// Fold trims and lower-cases s for case-insensitive comparisons.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Slugify lower-cases s and joins runs of letters and digits with '-'.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}
