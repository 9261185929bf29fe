// Package clean filters and de-duplicates harvested addresses.
package clean

import (
	"regexp"
	"strings"
)

var fullAddress = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.(?:co\.uk|org\.uk|ac\.uk|gov\.uk|nhs\.uk|[a-z]{2,})$`)

var placeholders = []string{
	"example.com", "sentry.wixpress.com", "your@email", "email@example", "info@your",
	"name@domain", "user@", "username@", "email@domain", "@localhost",
	"example.org", "example.net", "domain.com", "contact@example.com",
	"privacy@example.com", "email@here.com",
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

var disposableDomains = map[string]struct{}{
	"mailinator.com":   {},
	"temp-mail.org":    {},
	"10minutemail.com": {},
}

// Clean lowercases and trims each address and drops anything that is
// malformed, a known placeholder, an image filename, on a disposable-mail
// domain, or a repeat of an earlier entry. Order of first occurrence is kept.
func Clean(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	seen := make(map[string]struct{}, len(addresses))
	for _, raw := range addresses {
		addr := strings.ToLower(strings.TrimSpace(raw))
		if !Acceptable(addr) {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// Acceptable reports whether a lowercased, trimmed address passes every filter.
func Acceptable(addr string) bool {
	if !fullAddress.MatchString(addr) {
		return false
	}
	for _, p := range placeholders {
		if strings.Contains(addr, p) {
			return false
		}
	}
	for _, ext := range imageExtensions {
		if strings.HasSuffix(addr, ext) {
			return false
		}
	}
	domain := addr[strings.LastIndex(addr, "@")+1:]
	_, disposable := disposableDomains[domain]
	return !disposable
}
