package extract

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Document is a parsed HTML page.
type Document struct {
	Root *html.Node

	// URL is the address the page was fetched from.
	URL *url.URL

	// Base resolves relative links. It equals URL unless the page declares
	// a <base href>.
	Base *url.URL

	// Title is the trimmed text of the first <title> element.
	Title string
}

// ParseHTML parses body as HTML. contentType is the response Content-Type
// and is used, together with any <meta charset>, to decode legacy
// encodings; old archives are frequently served as ISO-8859-1.
func ParseHTML(body []byte, contentType, pageURL string) (*Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ParseError{Kind: MalformedMarkup, Path: pageURL, Err: err}
	}

	var r io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(r, contentType); err == nil {
		r = decoded
	} else {
		r = bytes.NewReader(body)
	}

	root, err := html.Parse(r)
	if err != nil {
		return nil, &ParseError{Kind: MalformedMarkup, Path: pageURL, Err: err}
	}

	doc := &Document{Root: root, URL: u, Base: u}
	if t := findFirst(root, "title"); t != nil {
		doc.Title = collapseSpace(textContent(t, " ", true))
	}
	if b := findFirst(root, "base"); b != nil {
		if href := getAttr(b, "href"); href != "" {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				doc.Base = u.ResolveReference(ref)
			}
		}
	}
	return doc, nil
}

// Resolve returns href as an absolute URL against the document base.
// It returns nil for empty, fragment-only or non-HTTP references.
func (d *Document) Resolve(href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := d.Base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

// Body returns the <body> element, or the root when there is none.
func (d *Document) Body() *html.Node {
	if b := findFirst(d.Root, "body"); b != nil {
		return b
	}
	return d.Root
}

// link is an anchor with its raw href and visible text.
type link struct {
	href string
	text string
}

// links returns every <a href> under n in document order.
func links(n *html.Node) []link {
	var out []link
	walk(n, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := lookupAttr(n, "href"); ok {
				out = append(out, link{href: href, text: collapseSpace(textContent(n, " ", true))})
			}
		}
		return true
	})
	return out
}

// walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(n, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// getAttr returns the value of an attribute, or empty string if not found.
func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// textContent joins the text nodes under n with sep. With strip set, each
// piece is trimmed and empty pieces are dropped; otherwise only
// whitespace-only pieces are dropped. Script and style contents never
// count as text.
func textContent(n *html.Node, sep string, strip bool) string {
	var parts []string
	walk(n, func(n *html.Node) bool {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return false
			}
		case html.TextNode:
			s := n.Data
			if strings.TrimSpace(s) == "" {
				return true
			}
			if strip {
				s = strings.TrimSpace(s)
			}
			parts = append(parts, s)
		}
		return true
	})
	return strings.Join(parts, sep)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
