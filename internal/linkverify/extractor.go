package linkverify

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/docgate/internal/foundation/errors"
)

// Link represents an extracted link from HTML content.
type Link struct {
	URL       string // The URL or path
	Tag       string // HTML tag (a, img, script, link, etc.)
	Attribute string // Attribute containing the link (href, src)
	Line      int    // Approximate element index in the document
}

// linkAttrs maps element names to the attribute carrying their target.
var linkAttrs = map[string]string{
	"a":      "href",
	"link":   "href",
	"area":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"embed":  "src",
	"video":  "src",
	"audio":  "src",
	"source": "src",
	"track":  "src",
}

// ExtractLinks extracts all links from an HTML file.
func ExtractLinks(htmlPath string) ([]*Link, error) {
	file, err := os.Open(filepath.Clean(htmlPath))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to open HTML file").WithContext("html_path", htmlPath).Build()
	}
	defer func() {
		_ = file.Close()
	}()

	return ExtractLinksFromReader(file)
}

// ExtractLinksFromReader extracts all links from an HTML reader.
func ExtractLinksFromReader(r io.Reader) ([]*Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").Build()
	}

	var links []*Link
	var lineNum int

	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.ElementNode {
			lineNum++
			if attr, ok := linkAttrs[n.Data]; ok {
				if v := strings.TrimSpace(getAttr(n, attr)); v != "" {
					links = append(links, &Link{URL: v, Tag: n.Data, Attribute: attr, Line: lineNum})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(doc)
	return links, nil
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// IsLocal reports whether a link targets a file in the same output tree.
// Absolute URLs, protocol-relative URLs, bare anchors and special schemes
// are not local.
func IsLocal(link string) bool {
	switch {
	case link == "",
		strings.HasPrefix(link, "#"),
		strings.HasPrefix(link, "//"):
		return false
	}
	lower := strings.ToLower(link)
	for _, p := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	if i := strings.IndexAny(link, ":/?#"); i > 0 && link[i] == ':' {
		// scheme:...
		return false
	}
	return true
}
