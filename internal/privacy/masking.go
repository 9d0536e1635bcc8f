package privacy

import (
	"strings"
)

// MaskPhone masks a phone number showing only the last 4 digits.
// Example: "5511999999999" -> "*********9999"
func MaskPhone(phone string) string {
	return maskString(phone, 4)
}

// MaskJid masks a remote thread address while keeping the domain part for
// debugging. Example: "5511999999999@g.us" -> "*********9999@g.us"
func MaskJid(jid string) string {
	if jid == "" {
		return ""
	}

	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return maskString(jid[:i], 4) + jid[i:]
	}
	return maskString(jid, 4)
}

// MaskExternalID masks a provider message id, keeping the tail.
func MaskExternalID(id string) string {
	return maskString(id, 6)
}

func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}
	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
