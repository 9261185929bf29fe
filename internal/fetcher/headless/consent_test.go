package headless

import (
	"context"
	"errors"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"
)

func node(id cdp.NodeID, attrs ...string) *cdp.Node {
	return &cdp.Node{NodeID: id, NodeName: "BUTTON", Attributes: attrs}
}

func link(id cdp.NodeID, attrs ...string) *cdp.Node {
	return &cdp.Node{NodeID: id, NodeName: "A", Attributes: attrs}
}

// fakeDOM maps the current frame (0 for the top document) to its buttons and iframes.
type fakeDOM struct {
	buttons map[cdp.NodeID][]*cdp.Node
	frames  map[cdp.NodeID][]*cdp.Node
	texts   map[cdp.NodeID]string
	broken  map[cdp.NodeID]bool
	clicked []cdp.NodeID
	depths  []int
}

func current(scope *frameScope) cdp.NodeID {
	if scope.depth() == 0 {
		return 0
	}
	return scope.stack[scope.depth()-1].NodeID
}

func (f *fakeDOM) nodes(_ context.Context, query string, scope *frameScope) []*cdp.Node {
	f.depths = append(f.depths, scope.depth())
	if query == frameQuery {
		return f.frames[current(scope)]
	}
	return f.buttons[current(scope)]
}

func (f *fakeDOM) text(_ context.Context, n *cdp.Node) string { return f.texts[n.NodeID] }

func (f *fakeDOM) click(_ context.Context, n *cdp.Node) error {
	if f.broken[n.NodeID] {
		return errors.New("not visible")
	}
	f.clicked = append(f.clicked, n.NodeID)
	return nil
}

func TestConsentButton(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		node *cdp.Node
		text string
		want bool
	}{
		{"text match", node(1), "  Accept All ", true},
		{"value attribute", node(1, "value", "I agree"), "", true},
		{"onetrust id", node(1, "id", "onetrust-accept-btn-handler"), "Yes please", true},
		{"cookiebot id", node(1, "id", "CybotCookiebotDialogBodyButtonAccept"), "", true},
		{"class token", node(1, "class", "btn cc-accept primary"), "Sure", true},
		{"class substring only", node(1, "class", "btn cookie-banner__ok"), "Sure", false},
		{"reject button", node(1, "class", "cookie-reject"), "Reject all", false},
		{"policy link", link(1, "class", "cookie-policy-link", "href", "/cookies"), "Cookie policy", false},
		{"link to another page", link(1, "href", "https://shop.test/terms"), "Accept", false},
		{"script link", link(1, "class", "cmplz-accept", "href", "#"), "", true},
		{"unrelated", node(1, "class", "nav-link"), "Menu", false},
		{"partial text", node(1), "Accept our terms of sale", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, consentButton(tc.node, tc.text))
		})
	}
}

func TestConsentFrame(t *testing.T) {
	t.Parallel()

	require.True(t, consentFrame(node(1, "src", "https://cdn.cookielaw.org/consent/frame.html")))
	require.True(t, consentFrame(node(1, "title", "GDPR notice")))
	require.True(t, consentFrame(node(1, "id", "sp_message_iframe_cmp")))
	require.False(t, consentFrame(node(1, "src", "https://maps.test/embed")))
}

func TestDismissClicksTopDocumentFirst(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{
		buttons: map[cdp.NodeID][]*cdp.Node{0: {node(2), node(3)}},
		texts:   map[cdp.NodeID]string{2: "Menu", 3: "Got it"},
	}
	d := &consentDismisser{maxDepth: 2, ops: dom}
	require.True(t, d.Dismiss(context.Background()))
	require.Equal(t, []cdp.NodeID{3}, dom.clicked)
}

func TestDismissSkipsCookiePolicyLink(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{
		buttons: map[cdp.NodeID][]*cdp.Node{0: {
			link(2, "class", "cookie-policy-link", "href", "/cookies"),
			node(3, "class", "cookie-reject"),
			node(4, "id", "onetrust-accept-btn-handler"),
		}},
		texts: map[cdp.NodeID]string{2: "Read our cookie policy", 3: "Reject", 4: "Allow"},
	}
	d := &consentDismisser{maxDepth: 2, ops: dom}
	require.True(t, d.Dismiss(context.Background()))
	require.Equal(t, []cdp.NodeID{4}, dom.clicked)
}

func TestDismissDescendsIntoConsentFrames(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{
		frames: map[cdp.NodeID][]*cdp.Node{
			0:  {node(10, "src", "https://maps.test"), node(11, "id", "consent-wrapper")},
			11: {node(12, "name", "privacy-inner")},
		},
		buttons: map[cdp.NodeID][]*cdp.Node{
			10: {node(20)},
			12: {node(21), node(22)},
		},
		texts:  map[cdp.NodeID]string{20: "Accept", 21: "Accept", 22: "OK"},
		broken: map[cdp.NodeID]bool{21: true},
	}
	d := &consentDismisser{maxDepth: 2, ops: dom}
	require.True(t, d.Dismiss(context.Background()))
	require.Equal(t, []cdp.NodeID{22}, dom.clicked, "non-consent frames are never entered")
	require.LessOrEqual(t, maxInt(dom.depths), 2)
}

func TestDismissRespectsDepthLimit(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{
		frames: map[cdp.NodeID][]*cdp.Node{
			0:  {node(11, "id", "cmp-1")},
			11: {node(12, "id", "cmp-2")},
		},
		buttons: map[cdp.NodeID][]*cdp.Node{12: {node(30)}},
		texts:   map[cdp.NodeID]string{30: "Accept"},
	}
	require.False(t, (&consentDismisser{maxDepth: 1, ops: dom}).Dismiss(context.Background()))
	require.Empty(t, dom.clicked)

	require.True(t, (&consentDismisser{maxDepth: 2, ops: dom}).Dismiss(context.Background()))
	require.Equal(t, []cdp.NodeID{30}, dom.clicked)
}

func TestDismissStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dom := &fakeDOM{
		buttons: map[cdp.NodeID][]*cdp.Node{0: {node(2)}},
		texts:   map[cdp.NodeID]string{2: "Accept"},
	}
	require.False(t, (&consentDismisser{maxDepth: 2, ops: dom}).Dismiss(ctx))
	require.Empty(t, dom.depths)
}

func TestFrameScopeQueryOptions(t *testing.T) {
	t.Parallel()

	scope := &frameScope{}
	require.Len(t, scope.queryOptions(), 2)
	scope.push(node(1))
	scope.push(node(2))
	require.Len(t, scope.queryOptions(), 3)
	scope.pop()
	scope.pop()
	scope.pop()
	require.Zero(t, scope.depth())
}

func maxInt(values []int) int {
	out := 0
	for _, v := range values {
		if v > out {
			out = v
		}
	}
	return out
}
