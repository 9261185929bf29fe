package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

func TestMatchSocial(t *testing.T) {
	t.Parallel()

	cases := []struct {
		href     string
		platform harvest.Platform
		link     string
		ok       bool
	}{
		{href: "https://www.facebook.com/acmeco/", platform: harvest.PlatformFacebook, link: "https://facebook.com/acmeco", ok: true},
		{href: "https://facebook.com/sharer/sharer.php?u=x", ok: false},
		{href: "https://x.com/acme", platform: harvest.PlatformTwitter, link: "https://twitter.com/acme", ok: true},
		{href: "https://twitter.com/intent/tweet", ok: false},
		{href: "https://uk.linkedin.com/company/acme-ltd", platform: harvest.PlatformLinkedIn, link: "https://linkedin.com/company/acme-ltd", ok: true},
		{href: "https://www.youtube.com/@acmetv", platform: harvest.PlatformYouTube, link: "https://youtube.com/@acmetv", ok: true},
		{href: "https://www.youtube.com/channel/UC123", platform: harvest.PlatformYouTube, link: "https://www.youtube.com/channel/UC123", ok: true},
		{href: "https://www.tiktok.com/@acme", platform: harvest.PlatformTikTok, link: "https://tiktok.com/@acme", ok: true},
		{href: "https://netflix.com/title", ok: false},
		{href: "mailto:info@facebook.com", ok: false},
		{href: "#facebook.com/acme", ok: false},
		{href: "https://instagram.com/a", ok: false},
	}
	for _, tc := range cases {
		platform, link, ok := MatchSocial(tc.href)
		require.Equal(t, tc.ok, ok, tc.href)
		if tc.ok {
			require.Equal(t, tc.platform, platform, tc.href)
			require.Equal(t, tc.link, link, tc.href)
		}
	}
}

func TestSocial_RequiresContextOnLightPages(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<div class="footer-social"><a href="https://instagram.com/acme">IG</a></div>
<a href="https://facebook.com/acmeco">Facebook</a>
<a href="https://pinterest.com/acmepins">pins</a>
</body></html>`
	doc, err := NewDocument(&harvest.Page{URL: "https://acme.test", Body: []byte(body)})
	require.NoError(t, err)

	light := Social(doc, true)
	require.Equal(t, harvest.SocialProfiles{
		harvest.PlatformInstagram: "https://instagram.com/acme",
		harvest.PlatformFacebook:  "https://facebook.com/acmeco",
	}, light)

	rich := Social(doc, false)
	require.Equal(t, "https://pinterest.com/acmepins", rich[harvest.PlatformPinterest])
}

func TestSocial_FirstLinkPerPlatformWins(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<a href="https://www.facebook.com/acmeco/">Facebook</a>
<a href="https://www.facebook.com/acme-archive">old page</a>
<a href="https://x.com/acme">X</a>
<a href="https://twitter.com/acme_support">Twitter</a>
<a href="https://www.youtube.com/@acmetv">YouTube</a>
</body></html>`
	doc := mustDocument(t, body)

	require.Equal(t, harvest.SocialProfiles{
		harvest.PlatformFacebook: "https://facebook.com/acmeco",
		harvest.PlatformTwitter:  "https://twitter.com/acme",
		harvest.PlatformYouTube:  "https://youtube.com/@acmetv",
	}, Social(doc, false))
}

func TestValidHandle(t *testing.T) {
	t.Parallel()

	require.True(t, ValidHandle("acme"))
	require.False(t, ValidHandle("a"))
	require.False(t, ValidHandle("login"))
	require.False(t, ValidHandle("Share"))
	require.False(t, ValidHandle("a/b"))
}
