package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

const (
	maxScripts      = 25
	maxScriptLength = 50000
	maxFragmentLen  = 100
)

// Outcome is the result of one strategy. A strategy that could not complete
// reports Err and whatever it found before failing.
type Outcome struct {
	Candidates []harvest.Candidate
	Err        error
}

// Strategy extracts candidates from a parsed document.
type Strategy interface {
	Name() string
	Extract(doc *Document) Outcome
}

// StrategyFunc adapts a function into a Strategy.
type StrategyFunc struct {
	name string
	fn   func(doc *Document) Outcome
}

// NewStrategy wraps fn as a named Strategy.
func NewStrategy(name string, fn func(doc *Document) Outcome) StrategyFunc {
	return StrategyFunc{name: name, fn: fn}
}

// Name returns the strategy label used in logs.
func (s StrategyFunc) Name() string { return s.name }

// Extract runs the wrapped function.
func (s StrategyFunc) Extract(doc *Document) Outcome { return s.fn(doc) }

// DefaultStrategies returns the static strategies in their run order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		NewStrategy("visible_text", visibleText),
		NewStrategy("element_text", elementText),
		NewStrategy("mailto", mailtoLinks),
		NewStrategy("meta", metaTags),
		NewStrategy("source", pageSource),
		NewStrategy("script", inlineScripts),
		NewStrategy("form", forms),
		NewStrategy("accessibility", accessibility),
		NewStrategy("obfuscated", obfuscated),
	}
}

func collect(text string, flags harvest.Flags) []harvest.Candidate {
	addrs := FromText(text)
	out := make([]harvest.Candidate, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, harvest.Candidate{Address: a, Flags: flags})
	}
	return out
}

func visibleText(doc *Document) Outcome {
	body := doc.DOM.Find("body")
	if body.Length() == 0 {
		body = doc.DOM.Selection
	}
	return Outcome{Candidates: collect(spacedText(body), doc.baseFlags(harvest.FlagText))}
}

func elementText(doc *Document) Outcome {
	var out []harvest.Candidate
	doc.DOM.Find("p, span, div, a, li, td, address").Each(func(_ int, sel *goquery.Selection) {
		own := ownText(sel)
		if !strings.Contains(own, "@") {
			return
		}
		flags := doc.baseFlags(harvest.FlagElement).Union(placement(sel))
		if nearContact(sel) {
			flags = flags.With(harvest.FlagNearContact)
		}
		out = append(out, collect(spacedText(sel), flags)...)
	})
	return Outcome{Candidates: out}
}

// ownText returns the text of sel's direct text children.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}

func mailtoLinks(doc *Document) Outcome {
	var out []harvest.Candidate
	doc.DOM.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		target := stripMailto(href)
		flags := doc.baseFlags(harvest.FlagMailto).Union(placement(sel))
		out = append(out, collect(target, flags)...)
	})
	return Outcome{Candidates: out}
}

func stripMailto(href string) string {
	target := href[len("mailto:"):]
	if i := strings.Index(target, "?"); i >= 0 {
		target = target[:i]
	}
	return target
}

func metaTags(doc *Document) Outcome {
	var out []harvest.Candidate
	doc.DOM.Find("meta[content]").Each(func(_ int, sel *goquery.Selection) {
		content := sel.AttrOr("content", "")
		if strings.Contains(content, "@") {
			out = append(out, collect(content, doc.baseFlags(harvest.FlagMeta))...)
		}
	})
	return Outcome{Candidates: out}
}

func pageSource(doc *Document) Outcome {
	return Outcome{Candidates: collect(doc.Raw, doc.baseFlags(harvest.FlagSource))}
}

func inlineScripts(doc *Document) Outcome {
	var texts []string
	doc.DOM.Find("script").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if i >= maxScripts {
			return false
		}
		text := sel.Text()
		if text != "" && len(text) < maxScriptLength && strings.Contains(text, "@") {
			texts = append(texts, text)
		}
		return true
	})
	if len(texts) == 0 {
		return Outcome{}
	}
	return Outcome{Candidates: collect(strings.Join(texts, " "), doc.baseFlags(harvest.FlagScript))}
}

func forms(doc *Document) Outcome {
	var out []harvest.Candidate
	doc.DOM.Find("form").Each(func(_ int, form *goquery.Selection) {
		action := strings.TrimSpace(form.AttrOr("action", ""))
		if strings.HasPrefix(strings.ToLower(action), "mailto:") {
			out = append(out, collect(stripMailto(action), doc.baseFlags(harvest.FlagForm))...)
		}
		form.Find("input[type=hidden]").Each(func(_ int, field *goquery.Selection) {
			value := field.AttrOr("value", "")
			if strings.Contains(value, "@") {
				out = append(out, collect(value, doc.baseFlags(harvest.FlagForm, harvest.FlagHiddenField))...)
			}
		})
	})
	return Outcome{Candidates: out}
}

func accessibility(doc *Document) Outcome {
	var out []harvest.Candidate
	flags := doc.baseFlags(harvest.FlagAccessibility)
	for _, attr := range []string{"alt", "aria-label", "title"} {
		doc.DOM.Find("[" + attr + "]").Each(func(_ int, sel *goquery.Selection) {
			value := sel.AttrOr(attr, "")
			if strings.Contains(value, "@") {
				out = append(out, collect(value, flags)...)
			}
		})
	}
	return Outcome{Candidates: out}
}

func obfuscated(doc *Document) Outcome {
	var out []harvest.Candidate
	flags := doc.baseFlags(harvest.FlagObfuscated)
	doc.DOM.Find("[data-email], [data-user], [data-name], [data-domain], [data-host]").Each(func(_ int, sel *goquery.Selection) {
		email := sel.AttrOr("data-email", "")
		if email == "" {
			name := firstAttr(sel, "data-name", "data-user")
			domain := firstAttr(sel, "data-domain", "data-host")
			if name != "" && domain != "" {
				email = name + "@" + domain
			}
		}
		if email != "" {
			out = append(out, collect(email, flags)...)
		}
		if text := spacedText(sel); len(text) < maxFragmentLen && hasAtMarker(text) {
			out = append(out, collect(text, flags)...)
		}
	})
	doc.DOM.Find("span").Each(func(_ int, sel *goquery.Selection) {
		text := spacedText(sel)
		if len(text) < maxFragmentLen && hasAtMarker(text) {
			out = append(out, collect(text, flags)...)
		}
	})
	return Outcome{Candidates: out}
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(sel.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

func hasAtMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "@") || strings.Contains(lower, "(at)") || strings.Contains(lower, "[at]")
}
