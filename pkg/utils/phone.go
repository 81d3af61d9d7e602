package utils

import "strings"

// StripJID removes the WhatsApp JID suffix ("@s.whatsapp.net", "@g.us", ...)
// from an identifier, leaving the bare number.
func StripJID(jid string) string {
	if idx := strings.Index(jid, "@"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}

// NormalizePhone converts a raw phone or JID into the international form
// the provider expects: digits only, Indonesian country code 62 by default.
func NormalizePhone(phone string) string {
	phone = StripJID(phone)

	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	p := digits.String()
	if p == "" {
		return p
	}

	if strings.HasPrefix(p, "0") {
		return "62" + p[1:]
	}
	if !strings.HasPrefix(p, "62") {
		return "62" + p
	}
	return p
}

// SanitizePhone normalizes a phone field in place when set.
func SanitizePhone(phone *string) {
	if phone == nil || *phone == "" {
		return
	}
	*phone = NormalizePhone(*phone)
}

// IsPlainPhone reports whether the identifier looks like a real user phone:
// digits only and at most 16 characters. Anything else (LIDs, device ids,
// status broadcasts) is refused by the ingest filter.
func IsPlainPhone(phone string) bool {
	if phone == "" || len(phone) > 16 {
		return false
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
