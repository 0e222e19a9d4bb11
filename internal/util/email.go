package util

import "strings"

// Domains whose mailers treat dots in the local part as insignificant.
var dotInsensitiveDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// NormalizeEmail returns the canonical form of an email address used for
// duplicate-account detection: lower-cased, sub-address suffix ("+tag")
// stripped, and for dot-insensitive providers the dots in the local part
// removed. Addresses that do not look like email pass through lower-cased.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return email
	}

	local, domain := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if dotInsensitiveDomains[domain] {
		local = strings.ReplaceAll(local, ".", "")
	}
	if local == "" {
		return email
	}
	return local + "@" + domain
}
