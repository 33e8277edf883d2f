package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/urlutil"
)

var feedPath = regexp.MustCompile(`(?i)(/rss|/feed)(/|$)|\.rss$|\.feed$|rss\.xml$|feed\.xml$`)

// DiscoverFeed returns the absolute feed URL a page advertises, or "" when none is found.
// Typed <link> alternates win; otherwise same-origin hrefs with feed-looking paths are considered.
func DiscoverFeed(doc *goquery.Document, pageURL string) string {
	if doc == nil {
		return ""
	}

	var found string
	doc.Find(`link[type="application/rss+xml"][href], link[type="application/atom+xml"][href]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if href := strings.TrimSpace(sel.AttrOr("href", "")); href != "" {
			found = urlutil.Resolve(pageURL, href)
		}
		return found == ""
	})
	if found != "" {
		return found
	}

	doc.Find("a[href], link[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || !urlutil.SameOrigin(pageURL, href) {
			return true
		}
		abs := urlutil.Resolve(pageURL, href)
		u, err := url.Parse(abs)
		if err != nil || !feedPath.MatchString(u.Path) {
			return true
		}
		found = abs
		return false
	})
	return found
}
