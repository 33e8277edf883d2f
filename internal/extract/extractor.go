package extract

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/google/uuid"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/infrastructure/imaging"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/runctx"
	"NewsIngest/internal/urlutil"
)

var errNoReadableText = errors.New("no readable text")

// ImageBox is the 1x bounding box; the 2x variant doubles both sides.
type ImageBox struct {
	Width  int
	Height int
}

// Extractor fills content, summary and image fields from an article's own page.
type Extractor struct {
	fetcher   ports.Fetcher
	files     ports.FileStore
	box       ImageBox
	requireAI bool
	converter *md.Converter
}

// NewExtractor wires an extractor. requireAI makes AI fields part of the completion law.
func NewExtractor(fetcher ports.Fetcher, files ports.FileStore, box ImageBox, requireAI bool) *Extractor {
	if box.Width <= 0 {
		box.Width = 800
	}
	if box.Height <= 0 {
		box.Height = 450
	}
	return &Extractor{
		fetcher:   fetcher,
		files:     files,
		box:       box,
		requireAI: requireAI,
		converter: md.NewConverter("", true, nil),
	}
}

// Complete runs every missing step for article and returns its new status.
// Populated fields are left unchanged; failures are logged to run and leave the article pending.
func (e *Extractor) Complete(ctx context.Context, run *runctx.Run, dir string, article *domain.Article) domain.Status {
	urls := domain.LogURLs{ArticleURL: article.URL}
	if article.Key == "" {
		article.Key = uuid.NewString()
	}
	if dir == "" {
		dir = urlutil.DirName(urlutil.Origin(article.URL))
	}

	if e.needsPage(article) {
		if err := e.fromPage(ctx, dir, article); err != nil {
			run.Error(urls, "extract article", err)
		}
	}

	if article.ImageURL != nil && (article.ImagePath == nil || article.ImagePath2x == nil) {
		if err := e.images(ctx, dir, article); err != nil {
			run.Error(urls, "extract image", err)
		}
	}

	article.Status = article.CompletionStatus(e.requireAI)
	return article.Status
}

func (e *Extractor) needsPage(a *domain.Article) bool {
	return a.Content == nil || a.Summary == nil || a.ImageURL == nil
}

func (e *Extractor) fromPage(ctx context.Context, dir string, article *domain.Article) error {
	html, err := e.fetcher.Text(ctx, article.URL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawlerr.Parse("parse article page", err)
	}

	if article.Summary == nil {
		if summary := StripHTML(metaContent(doc,
			`meta[property="og:description"]`,
			`meta[name="twitter:description"]`,
			`meta[name="description"]`,
		)); summary != "" {
			article.Summary = domain.Ptr(summary)
			if article.OriginalSummary == nil {
				article.OriginalSummary = domain.Ptr(summary)
			}
		}
	}

	if article.ImageURL == nil {
		if img := metaContent(doc, `meta[property="og:image"]`, `meta[name="twitter:image"]`, `meta[property="twitter:image"]`); img != "" {
			if !strings.HasPrefix(img, "data:") {
				img = urlutil.Resolve(article.URL, img)
			}
			article.ImageURL = domain.NonEmpty(img)
			if article.ImageAlt == nil {
				article.ImageAlt = domain.NonEmpty(metaContent(doc, `meta[property="og:image:alt"]`, `meta[name="twitter:image:alt"]`))
			}
		}
	}

	if article.Content == nil {
		return e.content(dir, article, html)
	}
	return nil
}

func (e *Extractor) content(dir string, article *domain.Article, html string) error {
	pageURL, err := url.Parse(article.URL)
	if err != nil {
		return crawlerr.Parse("parse article url", err)
	}
	parsed, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return crawlerr.Parse("readability", err)
	}
	if strings.TrimSpace(parsed.TextContent) == "" {
		return crawlerr.Parse("readability", errNoReadableText)
	}

	markdown, err := e.converter.ConvertString(parsed.Content)
	if err != nil || strings.TrimSpace(markdown) == "" {
		markdown = strings.TrimSpace(parsed.TextContent)
	}

	rel, err := e.files.WriteFile(path.Join("content", dir, article.Key+".md"), []byte(markdown+"\n"))
	if err != nil {
		return err
	}
	article.Content = &rel
	return nil
}

// storedPath reports whether an image reference points into the file store rather than the web.
// Data URIs are rewritten to such paths once decoded.
func storedPath(ref string) bool {
	return !strings.Contains(ref, "://") && !strings.HasPrefix(ref, "//")
}

// images writes the 1x and 2x variants. Data URIs are decoded and stored instead of kept inline.
func (e *Extractor) images(ctx context.Context, dir string, article *domain.Article) error {
	source := *article.ImageURL
	var (
		data []byte
		ext  string
		err  error
	)
	if strings.HasPrefix(source, "data:") {
		data, ext, err = imaging.DecodeDataURI(source)
		if err != nil {
			return err
		}
		rel, err := e.files.WriteFile(path.Join("images", dir, article.Key+"-original."+ext), data)
		if err != nil {
			return err
		}
		article.ImageURL = &rel
	} else if storedPath(source) {
		data, err = e.files.ReadFile(source)
		if err != nil {
			return err
		}
		ext = imaging.Sniff(data, strings.TrimPrefix(path.Ext(source), "."))
	} else {
		data, err = e.fetcher.Binary(ctx, source)
		if err != nil {
			return err
		}
		ext = imaging.Sniff(data, urlutil.Ext(source))
	}

	base := path.Join("images", dir, article.Key)
	if imaging.Passthrough(ext) {
		one, err := e.files.WriteFile(base+"."+ext, data)
		if err != nil {
			return err
		}
		two, err := e.files.WriteFile(base+"@2x."+ext, data)
		if err != nil {
			return err
		}
		article.ImagePath, article.ImagePath2x = &one, &two
		return nil
	}

	small, smallExt, err := imaging.Resize(data, e.box.Width, e.box.Height)
	if err != nil {
		return err
	}
	large, largeExt, err := imaging.Resize(data, 2*e.box.Width, 2*e.box.Height)
	if err != nil {
		return err
	}
	one, err := e.files.WriteFile(base+"."+smallExt, small)
	if err != nil {
		return err
	}
	two, err := e.files.WriteFile(base+"@2x."+largeExt, large)
	if err != nil {
		return err
	}
	article.ImagePath, article.ImagePath2x = &one, &two
	return nil
}
