package icons

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/urlutil"
)

// Declared lists the icon hrefs a page advertises, resolved to absolute URLs.
type Declared struct {
	Icon16  string
	Icon32  string
	Largest string
	// LargestSize is the advertised width of Largest, 0 when no sizes were given.
	LargestSize int
	OGImage     string
}

// Hrefs returns the distinct declared icon URLs in slot order.
func (d Declared) Hrefs() []string {
	seen := map[string]bool{}
	var out []string
	for _, href := range []string{d.Icon16, d.Icon32, d.Largest} {
		if href == "" || seen[href] {
			continue
		}
		seen[href] = true
		out = append(out, href)
	}
	return out
}

// ParseDeclared reads <link rel="...icon..."> and og:image from the page.
func ParseDeclared(doc *goquery.Document, pageURL string) Declared {
	var d Declared
	if doc == nil {
		return d
	}

	var first string
	doc.Find("link[rel][href]").Each(func(_ int, sel *goquery.Selection) {
		rel := strings.ToLower(sel.AttrOr("rel", ""))
		if !strings.Contains(rel, "icon") {
			return
		}
		raw := strings.TrimSpace(sel.AttrOr("href", ""))
		if raw == "" {
			return
		}
		href := urlutil.Resolve(pageURL, raw)
		if href == "" {
			return
		}
		if first == "" {
			first = href
		}

		size := largestSize(sel.AttrOr("sizes", ""))
		switch {
		case size == 16 && d.Icon16 == "":
			d.Icon16 = href
		case size == 32 && d.Icon32 == "":
			d.Icon32 = href
		case size > 32 && size > d.LargestSize:
			d.Largest = href
			d.LargestSize = size
		}
	})
	if d.Largest == "" {
		d.Largest = first
	}

	if og := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).AttrOr("content", "")); og != "" {
		d.OGImage = urlutil.Resolve(pageURL, og)
	}
	return d
}

// largestSize parses a sizes attribute such as "16x16 32x32" and returns the widest entry.
func largestSize(sizes string) int {
	best := 0
	for _, token := range strings.Fields(strings.ToLower(sizes)) {
		w, _, ok := strings.Cut(token, "x")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(w)
		if err == nil && n > best {
			best = n
		}
	}
	return best
}
