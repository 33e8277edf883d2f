package resolver

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/urlutil"
)

var titleSeparators = regexp.MustCompile(`[|:–—·•«».,\-]`)

// DeriveName picks the shortest title segment that mentions a domain label,
// falling back to the title-cased labels. The first of equally short segments wins.
func DeriveName(title, pageURL string) string {
	parts := urlutil.DomainParts(pageURL)

	best := ""
	for _, segment := range titleSeparators.Split(title, -1) {
		segment = strings.Join(strings.Fields(segment), " ")
		if segment == "" || !mentionsAny(segment, parts) {
			continue
		}
		if best == "" || utf8.RuneCountInString(segment) < utf8.RuneCountInString(best) {
			best = segment
		}
	}
	if best != "" {
		return best
	}

	words := make([]string, 0, len(parts))
	for _, p := range parts {
		words = append(words, titleCase(p))
	}
	return strings.Join(words, " ")
}

func mentionsAny(segment string, parts []string) bool {
	lower := strings.ToLower(segment)
	for _, p := range parts {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func titleCase(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

// pageTitle returns the trimmed <title>, falling back to og:site_name.
func pageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find(`meta[property="og:site_name"]`).AttrOr("content", ""))
}
