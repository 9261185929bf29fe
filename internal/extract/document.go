// Package extract finds candidate email addresses and social profile links in
// fetched pages.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/contact-harvester/internal/harvest"
)

// ContactPaths are the relative paths swept for contact details, in order.
var ContactPaths = []string{
	"/contact", "/contact-us", "/about", "/about-us", "/get-in-touch",
	"/reach-us", "/enquiry", "/enquiries", "/support", "/help",
	"/reach-out", "/talk-to-us", "/connect", "/feedback", "/info/contact",
	"/company/contact", "/about/contact", "/kontakt", "/contacto", "/contatto",
}

// IsContactPage reports whether pageURL looks like a contact or about page.
func IsContactPage(pageURL string) bool {
	lower := strings.ToLower(pageURL)
	if strings.Contains(lower, "contact") || strings.Contains(lower, "about") {
		return true
	}
	for _, p := range ContactPaths {
		if strings.Contains(lower, strings.Trim(p, "/")) {
			return true
		}
	}
	return false
}

// Document is a parsed page shared by all strategies.
type Document struct {
	URL         string
	Raw         string
	DOM         *goquery.Document
	ContactPage bool
	Rendered    bool
}

// NewDocument parses page into a Document.
func NewDocument(page *harvest.Page) (*Document, error) {
	if page == nil {
		return nil, fmt.Errorf("nil page")
	}
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		URL:         page.URL,
		Raw:         string(page.Body),
		DOM:         dom,
		ContactPage: IsContactPage(page.URL),
		Rendered:    page.Rendered,
	}, nil
}

// baseFlags returns the flags every candidate from this page carries.
func (d *Document) baseFlags(flags ...harvest.Flag) harvest.Flags {
	out := harvest.NewFlags(flags...)
	if d.ContactPage {
		out = out.With(harvest.FlagContactPage)
	}
	return out
}

const maxAncestorDepth = 6

// placement walks up to six ancestors of sel looking for header or footer
// containers.
func placement(sel *goquery.Selection) harvest.Flags {
	current := sel
	for i := 0; i < maxAncestorDepth; i++ {
		if current.Length() == 0 {
			return 0
		}
		tag := strings.ToLower(goquery.NodeName(current))
		if tag == "body" || tag == "html" || tag == "#document" {
			return 0
		}
		id := strings.ToLower(current.AttrOr("id", ""))
		class := strings.ToLower(current.AttrOr("class", ""))
		if tag == "header" || tag == "nav" ||
			strings.Contains(id, "header") || strings.Contains(class, "header") ||
			strings.Contains(id, "nav") || strings.Contains(id, "menu") {
			return harvest.NewFlags(harvest.FlagHeader)
		}
		if tag == "footer" ||
			strings.Contains(id, "footer") || strings.Contains(class, "footer") ||
			strings.Contains(id, "copyright") || strings.Contains(class, "copyright") {
			return harvest.NewFlags(harvest.FlagFooter)
		}
		current = current.Parent()
	}
	return 0
}

var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {}, "dd": {},
	"div": {}, "dl": {}, "dt": {}, "fieldset": {}, "figcaption": {}, "figure": {},
	"footer": {}, "form": {}, "h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {},
	"h6": {}, "header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {},
	"option": {}, "p": {}, "pre": {}, "section": {}, "table": {}, "tbody": {},
	"td": {}, "tfoot": {}, "th": {}, "thead": {}, "tr": {}, "ul": {},
}

var hiddenTags = map[string]struct{}{"script": {}, "style": {}, "noscript": {}, "template": {}}

// spacedText returns the text under sel with a space at every block element
// and <br>, so neighbouring list items or lines never run together. Inline
// elements join without a separator. Script and style contents are skipped.
func spacedText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if _, hidden := hiddenTags[n.Data]; hidden {
				return
			}
		}
		_, block := blockTags[n.Data]
		if block && n.Type == html.ElementNode {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block && n.Type == html.ElementNode {
			b.WriteByte(' ')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

var contactWords = []string{"contact", "email", "e-mail", "get in touch", "enquir", "reach us", "write to us"}

func nearContact(sel *goquery.Selection) bool {
	text := strings.ToLower(spacedText(sel) + " " + spacedText(sel.Parent()))
	text = EmailPattern.ReplaceAllString(text, " ")
	for _, w := range contactWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
