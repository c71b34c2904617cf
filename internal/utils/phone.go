package utils

import (
	"regexp"
	"strings"
)

var (
	e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	nonDigits   = regexp.MustCompile(`\D`)
)

func IsE164(number string) bool { return e164Pattern.MatchString(number) }

// NormalizeUSPhone turns the free-form numbers people type into a contact
// form ("(864) 555-0100", "864.555.0100", "+1 864 555 0100") into E.164.
// Anything it cannot place is returned as "", false.
func NormalizeUSPhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	if strings.HasPrefix(raw, "+") {
		candidate := "+" + digits
		return candidate, IsE164(candidate)
	}
	switch {
	case len(digits) == 10:
		return "+1" + digits, true
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, true
	}
	return "", false
}
