package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// placeholderWebsites are website values treated as absent.
var placeholderWebsites = map[string]struct{}{
	"":    {},
	"n/a": {},
}

// HasWebsite reports whether raw holds something other than a placeholder.
func HasWebsite(raw string) bool {
	_, placeholder := placeholderWebsites[strings.ToLower(strings.TrimSpace(raw))]
	return !placeholder
}

// NormalizeWebsite trims and lowercases raw and adds an https scheme when it is
// missing. Values without a scheme must look like a host name (contain a dot
// and no spaces).
func NormalizeWebsite(raw string) (string, error) {
	site := strings.ToLower(strings.TrimSpace(raw))
	if !HasWebsite(site) {
		return "", fmt.Errorf("%w: %q", ErrInvalidWebsite, raw)
	}
	if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
		if !strings.Contains(site, ".") || strings.Contains(site, " ") {
			return "", fmt.Errorf("%w: %q", ErrInvalidWebsite, raw)
		}
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWebsite, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidWebsite, raw)
	}
	return site, nil
}

// Domain returns the lowercased host of rawURL with any leading "www." removed.
// It returns "" when rawURL cannot be parsed.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// JoinPath appends a relative path to a site root.
func JoinPath(site, path string) string {
	return strings.TrimRight(site, "/") + path
}
