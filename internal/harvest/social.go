package harvest

import (
	"net/url"
	"strings"
)

// Platform names a supported social network.
type Platform string

// Supported platforms.
const (
	PlatformFacebook  Platform = "facebook"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformYouTube   Platform = "youtube"
	PlatformPinterest Platform = "pinterest"
	PlatformTikTok    Platform = "tiktok"
)

// Platforms lists every supported platform in export column order.
var Platforms = []Platform{
	PlatformFacebook,
	PlatformTwitter,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformYouTube,
	PlatformPinterest,
	PlatformTikTok,
}

var platformHosts = map[Platform][]string{
	PlatformFacebook:  {"facebook.com", "fb.com"},
	PlatformTwitter:   {"twitter.com", "x.com"},
	PlatformInstagram: {"instagram.com"},
	PlatformLinkedIn:  {"linkedin.com"},
	PlatformYouTube:   {"youtube.com"},
	PlatformPinterest: {"pinterest.com"},
	PlatformTikTok:    {"tiktok.com"},
}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	_, ok := platformHosts[p]
	return ok
}

// OwnsHost reports whether host belongs to the platform.
func (p Platform) OwnsHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, h := range platformHosts[p] {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// SocialProfiles maps a platform to its profile URL. At most one URL per platform.
type SocialProfiles map[Platform]string

// Merge folds newer links into s. A newer link replaces the existing one unless
// that would trade a URL with a path for a bare-domain URL.
func (s SocialProfiles) Merge(newer SocialProfiles) {
	for platform, link := range newer {
		if existing, ok := s[platform]; ok && hasPath(existing) && !hasPath(link) {
			continue
		}
		s[platform] = link
	}
}

// Normalized returns the profiles rewritten to https://<host><path> without a
// trailing slash, dropping entries whose host is not owned by the platform.
func (s SocialProfiles) Normalized() SocialProfiles {
	out := make(SocialProfiles, len(s))
	for platform, link := range s {
		u, err := url.Parse(strings.TrimSpace(link))
		if err != nil || !strings.Contains(u.Host, ".") {
			continue
		}
		if !platform.OwnsHost(u.Hostname()) {
			continue
		}
		clean := strings.TrimRight("https://"+u.Host+u.Path, "/")
		out[platform] = clean
	}
	return out
}

// Clone returns a copy of s.
func (s SocialProfiles) Clone() SocialProfiles {
	out := make(SocialProfiles, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func hasPath(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.Trim(u.Path, "/") != ""
}
