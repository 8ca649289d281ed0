package inbound

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoSender is returned when no sender address can be determined.
var ErrNoSender = errors.New("no sender address")

var refTagRe = regexp.MustCompile(`(?i)\[REF:\s*([A-Za-z0-9_-]+)\s*\]`)

// ParseSender resolves the sender address from the provider's "from" field,
// which arrives either as a string ("Name <addr>" or bare address) or as an
// object with an "email" member. legacy is the older "from_email" field and
// is used only when "from" yields nothing.
func ParseSender(from json.RawMessage, legacy string) (string, error) {
	raw := senderField(from)
	if raw == "" {
		raw = legacy
	}
	addr := extractAddress(raw)
	if addr == "" {
		return "", ErrNoSender
	}
	return addr, nil
}

func senderField(from json.RawMessage) string {
	if len(from) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(from, &s); err == nil {
		return s
	}
	var obj struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(from, &obj); err == nil {
		return obj.Email
	}
	return ""
}

// extractAddress returns the part inside angle brackets when present,
// otherwise the trimmed input.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			return strings.TrimSpace(s[open+1 : open+end])
		}
	}
	return s
}

// ParseRefTag returns the RFP id carried in a "[REF:<id>]" subject tag, or "".
func ParseRefTag(subject string) string {
	m := refTagRe.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	return m[1]
}

// FormatRefTag renders the subject tag for an RFP id.
func FormatRefTag(rfpID string) string {
	return "[REF:" + rfpID + "]"
}
