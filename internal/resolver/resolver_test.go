package resolver

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/domain"
	"NewsIngest/internal/icons"
	"NewsIngest/internal/infrastructure/httpfetch"
	"NewsIngest/internal/infrastructure/storage"
	"NewsIngest/internal/runctx"
)

func pngOf(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))))
	return buf.Bytes()
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func newResolver(t *testing.T, srv *httptest.Server, opts Options) (*Resolver, *storage.DiskStore) {
	t.Helper()
	fetcher := httpfetch.New(srv.Client(), httpfetch.Options{Timeout: 2 * time.Second})
	files := storage.NewDiskStore(t.TempDir())
	return New(fetcher, icons.New(fetcher, files, nil), opts), files
}

func TestResolveWebsiteEndToEnd(t *testing.T) {
	t.Parallel()

	icon := pngOf(t, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><head><title>Example News | Latest stories</title>
				<link rel="alternate" type="application/rss+xml" href="/feed.xml">
				<link rel="icon" sizes="32x32" href="/favicon-32.png">
			</head><body></body></html>`))
		case "/favicon-32.png":
			_, _ = w.Write(icon)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, files := newResolver(t, srv, Options{RefreshDays: 7})
	run := runctx.New(nil, nil)
	src := &domain.Source{URL: srv.URL, Type: domain.SourceWebsite, Status: domain.StatusPending}

	require.NoError(t, res.Resolve(context.Background(), run, src))

	assert.Equal(t, srv.URL+"/feed.xml", domain.Value(src.RSSURL))
	require.NotNil(t, src.Icon16Path)
	require.NotNil(t, src.Icon32Path)
	assert.True(t, files.Exists(*src.Icon16Path))
	assert.True(t, files.Exists(*src.Icon32Path))
	assert.Equal(t, domain.StatusDone, src.Status)
	assert.NotNil(t, src.LastBuildDate)
	assert.Equal(t, run.Key, domain.Value(src.CrawlKey))
	assert.Zero(t, run.ErrorCount())
	assert.False(t, NeedsRefresh(src, time.Now(), 7))
}

func TestResolveWalksUpForIcons(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blog/tech/":
			_, _ = w.Write([]byte(`<title>Tech</title><a href="/blog/tech/feed/">RSS</a>`))
		case "/":
			_, _ = w.Write([]byte(`<link rel="icon" href="/logo.png">`))
		case "/logo.png":
			_, _ = w.Write(pngOf(t, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	res, _ := newResolver(t, srv, Options{NameOverrides: map[string]string{srv.URL + "/blog/tech/": "Tech Desk"}})
	run := runctx.New(nil, nil)
	src := &domain.Source{URL: srv.URL + "/blog/tech/?utm_source=x"}

	require.NoError(t, res.Resolve(context.Background(), run, src))
	assert.Equal(t, srv.URL+"/blog/tech/", src.URL)
	assert.Equal(t, "Tech Desk", domain.Value(src.Name))
	assert.Equal(t, srv.URL+"/blog/tech/feed/", domain.Value(src.RSSURL))
	assert.NotNil(t, src.Icon16Path)
	assert.NotNil(t, src.Icon32Path)
	assert.Equal(t, srv.URL+"/logo.png", domain.Value(src.IconLargestURL))
}

func TestResolveFetchFailureKeepsPriorState(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, _ := newResolver(t, srv, Options{})
	run := runctx.New(nil, nil)
	src := &domain.Source{URL: srv.URL, Name: domain.Ptr("Old name"), Status: domain.StatusDone}

	err := res.Resolve(context.Background(), run, src)
	require.Error(t, err)
	assert.Equal(t, domain.StatusPending, src.Status)
	assert.Equal(t, "Old name", domain.Value(src.Name))
	assert.Nil(t, src.LastBuildDate)
	assert.Equal(t, 1, run.ErrorCount())
	assert.Equal(t, domain.ErrorNetwork, run.Entries()[0].ErrorType)
}

func TestResolveMissingFeedIsLoggedNotFatal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<title>Nothing here</title>`))
	}))
	defer srv.Close()

	res, _ := newResolver(t, srv, Options{})
	run := runctx.New(nil, nil)
	src := &domain.Source{URL: srv.URL}

	require.NoError(t, res.Resolve(context.Background(), run, src))
	assert.Nil(t, src.RSSURL)
	assert.Equal(t, domain.StatusDone, src.Status)
	assert.True(t, NeedsRefresh(src, time.Now(), 30), "website without feed stays due")

	entries := run.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.ErrorCrawl, entries[len(entries)-1].ErrorType)
}

func TestNeedsRefresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	old := now.Add(-40 * 24 * time.Hour)
	feed := domain.Ptr("https://example.com/feed.xml")

	cases := []struct {
		name string
		src  domain.Source
		want bool
	}{
		{"pending", domain.Source{Status: domain.StatusPending, LastBuildDate: &recent, RSSURL: feed}, true},
		{"never built", domain.Source{Status: domain.StatusDone, RSSURL: feed}, true},
		{"website without feed", domain.Source{Status: domain.StatusDone, LastBuildDate: &recent}, true},
		{"directory without feed", domain.Source{Status: domain.StatusDone, LastBuildDate: &recent, Type: domain.SourceDirectory}, false},
		{"stale", domain.Source{Status: domain.StatusDone, LastBuildDate: &old, RSSURL: feed}, true},
		{"fresh", domain.Source{Status: domain.StatusDone, LastBuildDate: &recent, RSSURL: feed}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NeedsRefresh(&tc.src, now, 30), tc.name)
	}
}

func TestDeriveName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Example News", DeriveName("Example News | Latest stories", "https://www.example.com"))
	assert.Equal(t, "Acme Blog", DeriveName("Home · Acme Blog", "https://blog.acme.io/"))
	assert.Equal(t, "Acme", DeriveName("Beta | Acme | acme", "https://acme.com"), "first of equally short segments")
	assert.Equal(t, "My Cool Site", DeriveName("Welcome", "https://my-cool-site.co.uk"))
	assert.Equal(t, "Acme", DeriveName("Acme Weekly — Acme", "https://acme.com"))
}

func TestDiscoverFeed(t *testing.T) {
	t.Parallel()

	base := "https://example.com/blog/"
	assert.Equal(t, "https://example.com/atom.xml",
		DiscoverFeed(doc(t, `<link type="application/atom+xml" href="/atom.xml"><a href="/rss">rss</a>`), base))
	assert.Equal(t, "https://example.com/blog/rss",
		DiscoverFeed(doc(t, `<a href="/feedback">x</a><a href="rss">rss</a>`), base))
	assert.Equal(t, "https://example.com/news/index.rss",
		DiscoverFeed(doc(t, `<a href="https://other.com/feed.xml">x</a><a href="https://example.com/news/index.rss">y</a>`), base))
	assert.Empty(t, DiscoverFeed(doc(t, `<a href="https://other.com/feed.xml">x</a><a href="/about">a</a>`), base))
}
