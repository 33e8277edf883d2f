package icons

import (
	"context"
	"errors"
	"path"
	"strings"

	"NewsIngest/internal/domain"
	"NewsIngest/internal/infrastructure/imaging"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/urlutil"
)

const (
	slot16      = "icon-16"
	slot32      = "icon-32"
	slotLargest = "icon-largest"
)

var errNoCandidate = errors.New("no candidate icon")

// writer downloads icon payloads and stores them under icons/<dir>/.
type writer struct {
	fetcher ports.Fetcher
	files   ports.FileStore
}

func (w *writer) save(dir, slot, ext string, data []byte) (*string, error) {
	if ext == "" {
		ext = "png"
	}
	rel, err := w.files.WriteFile(path.Join("icons", dir, slot+"."+ext), data)
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// applyICO downloads an .ico URL and files its frames by width. Payloads that are not
// ICO containers are classified by their decoded width instead.
func (w *writer) applyICO(ctx context.Context, in Input, cur Set, iconURL string) (Set, error) {
	data, err := w.fetcher.Binary(ctx, iconURL)
	if err != nil {
		return cur, err
	}

	var frames []imaging.Frame
	if imaging.IsICO(data) {
		frames, err = imaging.SplitICO(data)
		if err != nil {
			return cur, err
		}
	} else {
		width, height, err := imaging.Size(data)
		if err != nil {
			return cur, err
		}
		frames = []imaging.Frame{{Width: width, Height: height, Ext: imaging.Sniff(data, "ico"), Data: data}}
	}

	var largest *imaging.Frame
	for i := range frames {
		f := frames[i]
		switch {
		case f.Width == 16 && cur.Icon16Path == nil:
			p, err := w.save(in.Dir, slot16, f.Ext, f.Data)
			if err != nil {
				return cur, err
			}
			cur.Icon16Path, cur.Icon16URL = p, domain.Ptr(iconURL)
		case f.Width == 32 && cur.Icon32Path == nil:
			p, err := w.save(in.Dir, slot32, f.Ext, f.Data)
			if err != nil {
				return cur, err
			}
			cur.Icon32Path, cur.Icon32URL = p, domain.Ptr(iconURL)
		case f.Width != 16 && f.Width != 32:
			if largest == nil || f.Width > largest.Width {
				largest = &frames[i]
			}
		}
	}

	if largest != nil && largest.Width > cur.largestWidth {
		p, err := w.save(in.Dir, slotLargest, largest.Ext, largest.Data)
		if err != nil {
			return cur, err
		}
		cur.LargestPath, cur.LargestURL, cur.largestWidth = p, domain.Ptr(iconURL), largest.Width
	}
	return cur, nil
}

// download stores one declared icon into slot and reports its sniffed extension.
func (w *writer) download(ctx context.Context, in Input, slot, iconURL string) (*string, []byte, string, error) {
	data, err := w.fetcher.Binary(ctx, iconURL)
	if err != nil {
		return nil, nil, "", err
	}
	ext := imaging.Sniff(data, urlutil.Ext(iconURL))
	p, err := w.save(in.Dir, slot, ext, data)
	if err != nil {
		return nil, nil, "", err
	}
	return p, data, ext, nil
}

// resizeInto synthesizes slot from a raster payload when it is at least size pixels wide.
func (w *writer) resizeInto(in Input, slot string, size int, data []byte) (*string, error) {
	width, _, err := imaging.Size(data)
	if err != nil {
		return nil, err
	}
	if width < size {
		return nil, nil
	}
	resized, ext, err := imaging.Resize(data, size, size)
	if err != nil {
		return nil, err
	}
	return w.save(in.Dir, slot, ext, resized)
}

type faviconStage struct{ w *writer }

func (faviconStage) Name() string { return "favicon" }

func (s faviconStage) Resolve(ctx context.Context, in Input, cur Set) (Set, bool, error) {
	if in.Origin == "" {
		return cur, false, errNoCandidate
	}
	next, err := s.w.applyICO(ctx, in, cur, in.Origin+"/favicon.ico")
	return next, next.Complete(), err
}

type otherICOStage struct{ w *writer }

func (otherICOStage) Name() string { return "other-ico" }

func (s otherICOStage) Resolve(ctx context.Context, in Input, cur Set) (Set, bool, error) {
	favicon := in.Origin + "/favicon.ico"
	var errs []error
	for _, href := range in.Declared.Hrefs() {
		if urlutil.Ext(href) != "ico" || strings.EqualFold(urlutil.MustNormalize(href), favicon) {
			continue
		}
		next, err := s.w.applyICO(ctx, in, cur, href)
		cur = next
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cur.Complete() {
			return cur, true, nil
		}
	}
	return cur, cur.Complete(), errors.Join(errs...)
}

type declaredStage struct{ w *writer }

func (declaredStage) Name() string { return "declared" }

func (s declaredStage) Resolve(ctx context.Context, in Input, cur Set) (Set, bool, error) {
	var errs []error
	if cur.Icon16Path == nil && in.Declared.Icon16 != "" {
		p, _, _, err := s.w.download(ctx, in, slot16, in.Declared.Icon16)
		if err != nil {
			errs = append(errs, err)
		} else {
			cur.Icon16Path, cur.Icon16URL = p, domain.Ptr(in.Declared.Icon16)
		}
	}
	if cur.Icon32Path == nil && in.Declared.Icon32 != "" {
		p, _, _, err := s.w.download(ctx, in, slot32, in.Declared.Icon32)
		if err != nil {
			errs = append(errs, err)
		} else {
			cur.Icon32Path, cur.Icon32URL = p, domain.Ptr(in.Declared.Icon32)
		}
	}
	return cur, cur.Complete(), errors.Join(errs...)
}

type largestStage struct{ w *writer }

func (largestStage) Name() string { return "largest" }

func (s largestStage) Resolve(ctx context.Context, in Input, cur Set) (Set, bool, error) {
	candidate := in.Declared.Largest
	if candidate == "" {
		candidate = in.Declared.OGImage
	}
	if candidate == "" {
		return cur, false, errNoCandidate
	}

	p, data, ext, err := s.w.download(ctx, in, slotLargest, candidate)
	if err != nil {
		return cur, false, err
	}
	cur.LargestPath, cur.LargestURL = p, domain.Ptr(candidate)
	if imaging.Passthrough(ext) {
		return cur, cur.Complete(), nil
	}

	var errs []error
	if cur.Icon32Path == nil {
		p, err := s.w.resizeInto(in, slot32, 32, data)
		if err != nil {
			errs = append(errs, err)
		} else if p != nil {
			cur.Icon32Path, cur.Icon32URL = p, domain.Ptr(candidate)
		}
	}
	if cur.Icon16Path == nil {
		p, err := s.w.resizeInto(in, slot16, 16, data)
		if err != nil {
			errs = append(errs, err)
		} else if p != nil {
			cur.Icon16Path, cur.Icon16URL = p, domain.Ptr(candidate)
		}
	}
	return cur, cur.Complete(), errors.Join(errs...)
}

// crossResizeStage derives 16 from 32. A lone 16 is never upsized.
type crossResizeStage struct{ w *writer }

func (crossResizeStage) Name() string { return "cross-resize" }

func (s crossResizeStage) Resolve(_ context.Context, in Input, cur Set) (Set, bool, error) {
	if cur.Icon32Path == nil || cur.Icon16Path != nil {
		return cur, cur.Complete(), nil
	}
	if imaging.Passthrough(urlutil.Ext(*cur.Icon32Path)) {
		return cur, false, nil
	}
	data, err := s.w.files.ReadFile(*cur.Icon32Path)
	if err != nil {
		return cur, false, err
	}
	p, err := s.w.resizeInto(in, slot16, 16, data)
	if err != nil || p == nil {
		return cur, false, err
	}
	cur.Icon16Path, cur.Icon16URL = p, cur.Icon32URL
	return cur, true, nil
}
