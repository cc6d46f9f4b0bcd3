package logger

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
)

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks a phone number, keeping only the last two digits.
func RedactPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 2 {
		return "***"
	}
	trimmed := strings.TrimSpace(phone)
	return "***" + trimmed[len(trimmed)-2:]
}

// redactValue applies field-name driven redaction, then scans the value for
// embedded emails and phone numbers regardless of the field name.
func redactValue(key, val string) string {
	lk := strings.ToLower(key)
	switch {
	case strings.Contains(lk, "email") || strings.Contains(lk, "recipient") || strings.Contains(lk, "customer"):
		return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	case strings.Contains(lk, "phone"):
		return RedactPhone(val)
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return val
}
