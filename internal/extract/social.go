package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

type socialPattern struct {
	re    *regexp.Regexp
	build func(handle, href string) string
}

func canonical(prefix string) func(handle, href string) string {
	return func(handle, _ string) string { return prefix + handle }
}

var socialPatterns = map[harvest.Platform][]socialPattern{
	harvest.PlatformFacebook: {
		{regexp.MustCompile(`(?i)facebook\.com/pages/([^/"'?]+)`), canonical("https://facebook.com/")},
		{regexp.MustCompile(`(?i)facebook\.com/([^/"'?]+)`), canonical("https://facebook.com/")},
		{regexp.MustCompile(`(?i)fb\.com/([^/"'?]+)`), canonical("https://facebook.com/")},
	},
	harvest.PlatformTwitter: {
		{regexp.MustCompile(`(?i)twitter\.com/([^/"'?]+)`), canonical("https://twitter.com/")},
		{regexp.MustCompile(`(?i)(?:^|[/.])x\.com/([^/"'?]+)`), canonical("https://twitter.com/")},
	},
	harvest.PlatformInstagram: {
		{regexp.MustCompile(`(?i)instagram\.com/([^/"'?]+)`), canonical("https://instagram.com/")},
	},
	harvest.PlatformLinkedIn: {
		{regexp.MustCompile(`(?i)linkedin\.com/company/([^/"'?]+)`), canonical("https://linkedin.com/company/")},
		{regexp.MustCompile(`(?i)linkedin\.com/school/([^/"'?]+)`), canonical("https://linkedin.com/school/")},
		{regexp.MustCompile(`(?i)linkedin\.com/in/([^/"'?]+)`), canonical("https://linkedin.com/in/")},
	},
	harvest.PlatformYouTube: {
		{regexp.MustCompile(`(?i)youtube\.com/(@[^/"'?]+)`), youtubeURL},
		{regexp.MustCompile(`(?i)youtube\.com/channel/([^/"'?]+)`), youtubeURL},
		{regexp.MustCompile(`(?i)youtube\.com/c/([^/"'?]+)`), youtubeURL},
		{regexp.MustCompile(`(?i)youtube\.com/user/([^/"'?]+)`), youtubeURL},
	},
	harvest.PlatformPinterest: {
		{regexp.MustCompile(`(?i)pinterest\.com/([^/"'?]+)`), canonical("https://pinterest.com/")},
	},
	harvest.PlatformTikTok: {
		{regexp.MustCompile(`(?i)tiktok\.com/@([^/"'?]+)`), canonical("https://tiktok.com/@")},
	},
}

func youtubeURL(handle, href string) string {
	if strings.Contains(handle, "@") {
		return "https://youtube.com/@" + handle[strings.LastIndex(handle, "@")+1:]
	}
	return href
}

var reservedHandles = map[string]struct{}{
	"sharer": {}, "share": {}, "intent": {}, "tweet": {}, "post": {}, "view": {},
	"plugins": {}, "login": {}, "signup": {}, "home": {}, "search": {}, "explore": {},
	"pages": {}, "groups": {}, "events": {}, "ads": {}, "about": {}, "privacy": {}, "terms": {},
}

var socialKeywords = []string{"follow", "social", "connect", "network", "profile"}

// ValidHandle reports whether handle can name a profile.
func ValidHandle(handle string) bool {
	if len(handle) < 2 || strings.Contains(handle, "/") {
		return false
	}
	_, reserved := reservedHandles[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	return !reserved
}

// MatchSocial maps href to a platform and canonical profile URL.
func MatchSocial(href string) (harvest.Platform, string, bool) {
	href = strings.TrimSpace(href)
	if skipHref(href) {
		return "", "", false
	}
	for _, platform := range harvest.Platforms {
		if p, link, ok := matchPlatform(platform, href); ok {
			return p, link, true
		}
	}
	return "", "", false
}

func matchPlatform(platform harvest.Platform, href string) (harvest.Platform, string, bool) {
	for _, pat := range socialPatterns[platform] {
		m := pat.re.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		if !ValidHandle(m[1]) {
			continue
		}
		return platform, pat.build(m[1], href), true
	}
	return "", "", false
}

func skipHref(href string) bool {
	lower := strings.ToLower(href)
	return href == "" ||
		strings.HasPrefix(lower, "#") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "javascript:")
}

// Social scans anchors in document order and returns at most one profile per
// platform. When requireContext is set a link only counts if a nearby container
// looks like a social block or the link names its platform.
func Social(doc *Document, requireContext bool) harvest.SocialProfiles {
	found := harvest.SocialProfiles{}
	seen := map[string]struct{}{}
	doc.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if _, dup := seen[href]; dup || skipHref(href) {
			return
		}
		seen[href] = struct{}{}
		for _, platform := range harvest.Platforms {
			if _, ok := found[platform]; ok {
				continue
			}
			_, link, ok := matchPlatform(platform, href)
			if !ok {
				continue
			}
			if requireContext && !socialContext(sel, platform) {
				continue
			}
			found[platform] = link
			break
		}
	})
	return found
}

func socialContext(sel *goquery.Selection, platform harvest.Platform) bool {
	parent := sel.Parent()
	for i := 0; i < 3 && parent.Length() > 0; i++ {
		if goquery.NodeName(parent) == "body" {
			break
		}
		marker := strings.ToLower(parent.AttrOr("class", "") + " " + parent.AttrOr("id", ""))
		for _, kw := range socialKeywords {
			if strings.Contains(marker, kw) {
				return true
			}
		}
		parent = parent.Parent()
	}
	name := string(platform)
	attrs := strings.ToLower(sel.Text() + " " + sel.AttrOr("title", "") + " " + sel.AttrOr("aria-label", ""))
	return strings.Contains(attrs, name)
}
