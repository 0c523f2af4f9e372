package pagecontext

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/kumarabd/console-brief/pkg/ingest"
)

var (
	displayNone      = regexp.MustCompile(`(?i)(?:^|;)\s*display\s*:\s*none\b`)
	visibilityHidden = regexp.MustCompile(`(?i)(?:^|;)\s*visibility\s*:\s*hidden\b`)
	opacityZero      = regexp.MustCompile(`(?i)(?:^|;)\s*opacity\s*:\s*(?:0+(?:\.0*)?|\.0+)\s*(?:!important\s*)?(?:;|$)`)
)

// Elements that never render as page content.
var nonRendered = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"title":    true,
	"meta":     true,
	"link":     true,
}

// Elements that start a new line in rendered text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "caption": true, "dd": true, "details": true, "dialog": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true,
	"section": true, "summary": true, "table": true, "tr": true, "ul": true,
	"option": true, "html": true,
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

// styleHidden reports whether an inline style hides the element.
func styleHidden(n *html.Node) bool {
	style, ok := attr(n, "style")
	if !ok || style == "" {
		return false
	}
	return displayNone.MatchString(style) || visibilityHidden.MatchString(style) || opacityZero.MatchString(style)
}

// hiddenByMarkup reports whether n itself is removed from rendering by its
// attributes, without looking at ancestors.
func hiddenByMarkup(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if strings.EqualFold(n.Data, "input") && strings.EqualFold(attrValue(n, "type"), "hidden") {
		return true
	}
	return styleHidden(n) || nonRendered[n.Data]
}

// isVisible approximates layout visibility from markup: the element and every
// ancestor must be rendered, and the element must not be aria-hidden.
func isVisible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if attrValue(n, "aria-hidden") == "true" {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if hiddenByMarkup(p) {
			return false
		}
	}
	return true
}

func visibleSelection(s *goquery.Selection) bool {
	return len(s.Nodes) > 0 && isVisible(s.Nodes[0])
}

// textOf is normalized textContent.
func textOf(s *goquery.Selection) string {
	return ingest.NormalizeWhitespace(s.Text())
}

// renderedText approximates innerText: hidden and non-rendered subtrees are
// skipped, whitespace collapses outside <pre>, and block elements and <br>
// break lines.
func renderedText(root *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				b.WriteString(n.Data)
				return
			}
			text := ingest.NormalizeWhitespace(n.Data)
			if text == "" {
				if n.Data != "" {
					b.WriteByte(' ')
				}
				return
			}
			if n.Data[0] == ' ' || n.Data[0] == '\n' || n.Data[0] == '\t' {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			last := n.Data[len(n.Data)-1]
			if last == ' ' || last == '\n' || last == '\t' {
				b.WriteByte(' ')
			}
			return
		case html.ElementNode:
			if hiddenByMarkup(n) {
				return
			}
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
			block := blockElements[n.Data]
			if block {
				b.WriteByte('\n')
			}
			inPre := pre || n.Data == "pre" || n.Data == "textarea"
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, inPre)
			}
			if block {
				b.WriteByte('\n')
			}
			if n.Data == "td" || n.Data == "th" {
				b.WriteByte('\t')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
	}
	walk(root, false)
	return b.String()
}

// splitLines turns rendered text into non-empty normalized lines.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = ingest.NormalizeWhitespace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// resolver resolves attribute URLs the way element.href does.
type resolver struct {
	base   *url.URL
	page   string
	origin string
}

func newResolver(pageURL string) resolver {
	r := resolver{page: pageURL}
	if u, err := url.Parse(pageURL); err == nil && u.Scheme != "" && u.Host != "" {
		r.base = u
		r.origin = u.Scheme + "://" + u.Host
	}
	return r
}

func (r resolver) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || r.base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return r.base.ResolveReference(ref).String()
}

func (r resolver) external(href string) bool {
	if r.origin == "" {
		return strings.Contains(href, "://")
	}
	return !strings.HasPrefix(href, r.origin)
}
