// Package icons resolves 16px, 32px and largest site icons through an ordered list of fallback stages.
package icons

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/urlutil"
)

// Set is the working record of a cascade: where each slot came from and where it was written.
type Set struct {
	Icon16URL  *string
	Icon32URL  *string
	LargestURL *string

	Icon16Path  *string
	Icon32Path  *string
	LargestPath *string

	// largestWidth is the pixel width of the file at LargestPath, 0 when unknown.
	largestWidth int
}

// Complete reports whether both small slots hold a file.
func (s Set) Complete() bool {
	return s.Icon16Path != nil && s.Icon32Path != nil
}

// Input is what every stage sees.
type Input struct {
	PageURL  string
	Origin   string
	Dir      string
	Declared Declared
}

// Stage is one fallback step. found is true when the returned set is complete.
type Stage interface {
	Name() string
	Resolve(ctx context.Context, in Input, current Set) (next Set, found bool, err error)
}

// Cascade runs stages in order and stops at the first one that completes the set.
type Cascade struct {
	stages []Stage
	logger *slog.Logger
}

// New builds the default cascade: favicon, other ico, declared, largest, cross-resize.
func New(fetcher ports.Fetcher, files ports.FileStore, logger *slog.Logger) *Cascade {
	w := &writer{fetcher: fetcher, files: files}
	return NewWithStages(logger,
		faviconStage{w},
		otherICOStage{w},
		declaredStage{w},
		largestStage{w},
		crossResizeStage{w},
	)
}

// NewWithStages builds a cascade over an explicit stage list.
func NewWithStages(logger *slog.Logger, stages ...Stage) *Cascade {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cascade{stages: stages, logger: logger}
}

// Resolve runs the cascade for a fetched page, starting from an earlier partial result.
// dir partitions the written files per source.
func (c *Cascade) Resolve(ctx context.Context, doc *goquery.Document, pageURL, dir string, current Set) Set {
	in := Input{
		PageURL:  pageURL,
		Origin:   urlutil.Origin(pageURL),
		Dir:      dir,
		Declared: ParseDeclared(doc, pageURL),
	}
	return c.Run(ctx, in, current)
}

// Run iterates the stages. A failing stage keeps whatever it produced and the next stage runs.
func (c *Cascade) Run(ctx context.Context, in Input, current Set) Set {
	if current.Complete() {
		return current
	}
	for _, stage := range c.stages {
		if ctx.Err() != nil {
			return current
		}
		next, found, err := stage.Resolve(ctx, in, current)
		current = next
		if err != nil {
			c.logger.Debug("icon stage failed", "stage", stage.Name(), "page_url", in.PageURL, "error", err)
		}
		if found {
			c.logger.Debug("icons resolved", "stage", stage.Name(), "page_url", in.PageURL)
			return current
		}
	}
	return current
}

// FromSource seeds a set with the icons a source already has.
func FromSource(src *domain.Source) Set {
	return Set{
		Icon16URL:   src.Icon16URL,
		Icon32URL:   src.Icon32URL,
		LargestURL:  src.IconLargestURL,
		Icon16Path:  src.Icon16Path,
		Icon32Path:  src.Icon32Path,
		LargestPath: src.IconLargestPath,
	}
}

// Apply copies the resolved slots onto the source.
func (s Set) Apply(src *domain.Source) {
	src.Icon16URL, src.Icon32URL, src.IconLargestURL = s.Icon16URL, s.Icon32URL, s.LargestURL
	src.Icon16Path, src.Icon32Path, src.IconLargestPath = s.Icon16Path, s.Icon32Path, s.LargestPath
}
