package headless

import (
	"context"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

var consentTexts = map[string]struct{}{
	"accept": {}, "accept all": {}, "agree": {}, "i agree": {}, "allow all": {},
	"got it": {}, "ok": {}, "consent": {}, "allow cookies": {}, "accept cookies": {},
	"continue": {},
}

// consentTokens are matched against a button's whole id or one of its class
// tokens, never as substrings.
var consentTokens = map[string]struct{}{
	"cybotcookiebotdialogbodybuttonaccept": {}, "onetrust-accept-btn-handler": {},
	"accept-cookies": {}, "cookie-accept": {}, "cookie-consent-accept": {}, "gdpr-accept": {},
	"cc-accept": {}, "js-accept-cookies": {}, "js-accept-all-cookies": {}, "cookie-agree": {},
	"cookie-banner__accept": {}, "cookie-consent__accept": {}, "cookie-banner-accept": {},
	"cookie_action_close_header": {}, "wt-cli-accept-all-btn": {}, "cmplz-accept": {},
}

var frameHints = []string{"cookie", "consent", "privacy", "gdpr", "cmp", "onetrust", "trustarc", "banner"}

const (
	buttonQuery = `button, a, [role="button"], input[type="button"], input[type="submit"]`
	frameQuery  = `iframe`
)

// frameScope is the stack of iframes the search has entered. An empty stack
// means the top document.
type frameScope struct {
	stack []*cdp.Node
}

func (f *frameScope) push(frame *cdp.Node) { f.stack = append(f.stack, frame) }

func (f *frameScope) pop() {
	if len(f.stack) > 0 {
		f.stack = f.stack[:len(f.stack)-1]
	}
}

func (f *frameScope) depth() int { return len(f.stack) }

// queryOptions limits a query to the current frame.
func (f *frameScope) queryOptions() []chromedp.QueryOption {
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if n := len(f.stack); n > 0 {
		opts = append(opts, chromedp.FromNode(f.stack[n-1]))
	}
	return opts
}

// browserOps is the part of the DOM the dismisser touches.
type browserOps interface {
	nodes(ctx context.Context, query string, scope *frameScope) []*cdp.Node
	text(ctx context.Context, node *cdp.Node) string
	click(ctx context.Context, node *cdp.Node) error
}

type consentDismisser struct {
	maxDepth int
	ops      browserOps
}

func newConsentDismisser(maxDepth int) *consentDismisser {
	return &consentDismisser{maxDepth: maxDepth, ops: chromedpOps{}}
}

// Dismiss clicks the first consent button found in the top document or in a
// consent-looking iframe no deeper than maxDepth. It reports whether a click
// landed.
func (d *consentDismisser) Dismiss(ctx context.Context) bool {
	return d.search(ctx, &frameScope{})
}

func (d *consentDismisser) search(ctx context.Context, scope *frameScope) bool {
	if ctx.Err() != nil {
		return false
	}
	if d.clickInScope(ctx, scope) {
		return true
	}
	if scope.depth() >= d.maxDepth {
		return false
	}
	for _, frame := range d.ops.nodes(ctx, frameQuery, scope) {
		if !consentFrame(frame) {
			continue
		}
		scope.push(frame)
		found := d.search(ctx, scope)
		scope.pop()
		if found {
			return true
		}
	}
	return false
}

func (d *consentDismisser) clickInScope(ctx context.Context, scope *frameScope) bool {
	for _, node := range d.ops.nodes(ctx, buttonQuery, scope) {
		if !consentButton(node, d.ops.text(ctx, node)) {
			continue
		}
		if err := d.ops.click(ctx, node); err == nil {
			return true
		}
	}
	return false
}

func consentButton(node *cdp.Node, text string) bool {
	if leavesPage(node) {
		return false
	}
	label := strings.ToLower(strings.TrimSpace(text))
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(node.AttributeValue("value")))
	}
	if _, ok := consentTexts[label]; ok {
		return true
	}
	if _, ok := consentTokens[strings.ToLower(node.AttributeValue("id"))]; ok {
		return true
	}
	for _, class := range strings.Fields(strings.ToLower(node.AttributeValue("class"))) {
		if _, ok := consentTokens[class]; ok {
			return true
		}
	}
	return false
}

// leavesPage reports whether clicking node would follow a link to another
// document.
func leavesPage(node *cdp.Node) bool {
	if !strings.EqualFold(node.NodeName, "a") {
		return false
	}
	href := strings.ToLower(strings.TrimSpace(node.AttributeValue("href")))
	return href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:")
}

func consentFrame(node *cdp.Node) bool {
	attrs := strings.ToLower(strings.Join([]string{
		node.AttributeValue("src"),
		node.AttributeValue("id"),
		node.AttributeValue("name"),
		node.AttributeValue("title"),
	}, " "))
	for _, hint := range frameHints {
		if strings.Contains(attrs, hint) {
			return true
		}
	}
	return false
}

type chromedpOps struct{}

func (chromedpOps) nodes(ctx context.Context, query string, scope *frameScope) []*cdp.Node {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(query, &nodes, scope.queryOptions()...)); err != nil {
		return nil
	}
	return nodes
}

func (chromedpOps) text(ctx context.Context, node *cdp.Node) string {
	var text string
	if err := chromedp.Run(ctx, chromedp.Text([]cdp.NodeID{node.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return ""
	}
	return text
}

func (chromedpOps) click(ctx context.Context, node *cdp.Node) error {
	return chromedp.Run(ctx, chromedp.MouseClickNode(node))
}
