// Package reconcile matches archive entries with descriptor elements and
// turns referenced media into media items.
package reconcile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"runtime"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wsi/archive"
	"wsi/common"
	"wsi/media"
	"wsi/story"
)

var ErrAssetConversion = errors.New("asset conversion failed")

const DefaultPosterSuffix = "-poster.jpeg"

type Options struct {
	// Descriptor entry is never treated as media.
	DescriptorName string
	// Appended to extension-less video entry name to get its poster entry.
	PosterSuffix string
	// Maximum number of entries processed at once, 0 - number of CPUs.
	Concurrency int
}

// Failure describes entry which could not be reconciled.
type Failure struct {
	Entry string
	Err   error
}

// Result of reconciliation. Items and Patches are ordered by item id.
type Result struct {
	Items      []story.MediaItem
	Patches    []Patch
	Duplicates int
	Ignored    int
	Posters    int
	Failures   []Failure
}

// Err combines all entry failures, nil when there were none.
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, f.Err)
	}
	return err
}

// Reconciler converts referenced archive entries using Converter. Every
// entry is processed independently, failure of one never affects others.
type Reconciler struct {
	conv media.Converter
	opts Options
	log  *zap.Logger
}

func New(conv media.Converter, opts Options, log *zap.Logger) *Reconciler {
	if opts.PosterSuffix == "" {
		opts.PosterSuffix = DefaultPosterSuffix
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Reconciler{conv: conv, opts: opts, log: log.Named("reconcile")}
}

type task struct {
	entry *archive.Entry
	ref   Ref
	res   *story.Resource
	id    int
}

type outcome struct {
	item  story.MediaItem
	patch Patch
}

// Reconcile produces media items for archive entries referenced by indexed
// elements. Entries whose resource title is already present in existing
// collection are skipped as duplicates. Neither archive nor indexed pages
// are modified, element changes are returned as patches.
func (r *Reconciler) Reconcile(ctx context.Context, arc *archive.Archive, ix *Index, existing []story.MediaItem) (*Result, error) {
	titles := make(map[string]struct{}, len(existing))
	for i := range existing {
		if existing[i].Title != "" {
			titles[existing[i].Title] = struct{}{}
		}
	}
	base := story.MaxID(existing)

	result := &Result{}
	tasks := make([]task, 0, ix.Len())
	posters := make(map[string]struct{})

	_ = arc.Walk(func(e *archive.Entry) error {
		ref, el, ok := ix.Lookup(e.Name)
		switch {
		case !ok:
		case !el.Resource.IsMedia():
			r.log.Debug("Entry is not a media asset, skipping", zap.String("entry", e.Name), zap.String("type", el.Resource.Type))
			result.Ignored++
		case hasTitle(titles, el.Resource.Title):
			r.log.Debug("Media with the same title already exists, skipping", zap.String("entry", e.Name), zap.String("title", el.Resource.Title))
			result.Duplicates++
		default:
			if el.Resource.Type == common.ResourceTypeVideo.String() {
				if p := r.PosterName(e.Name); arc.Has(p) {
					posters[p] = struct{}{}
				}
			}
			tasks = append(tasks, task{entry: e, ref: ref, res: el.Resource, id: base + e.Index + 1})
		}
		return nil
	}, r.opts.DescriptorName)

	// posters are known only after all referenced entries were seen
	_ = arc.Walk(func(e *archive.Entry) error {
		if _, _, ok := ix.Lookup(e.Name); ok {
			return nil
		}
		if _, ok := posters[e.Name]; ok {
			result.Posters++
			return nil
		}
		r.log.Debug("Entry is not referenced by any element, skipping", zap.String("entry", e.Name))
		result.Ignored++
		return nil
	}, r.opts.DescriptorName)

	var (
		mu       sync.Mutex
		outcomes = make([]outcome, 0, len(tasks))
	)
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			item, patch, err := r.reconcileEntry(ctx, arc, t)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.log.Warn("Unable to import media, skipping", zap.String("entry", t.entry.Name), zap.Error(err))
				result.Failures = append(result.Failures, Failure{Entry: t.entry.Name, Err: err})
				return nil
			}
			outcomes = append(outcomes, outcome{item: item, patch: patch})
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(outcomes, func(a, b outcome) int { return cmp.Compare(a.item.ID, b.item.ID) })
	slices.SortFunc(result.Failures, func(a, b Failure) int { return strings.Compare(a.Entry, b.Entry) })
	for _, o := range outcomes {
		result.Items = append(result.Items, o.item)
		result.Patches = append(result.Patches, o.patch)
	}
	// items converted before cancellation are returned, so caller could
	// release them
	return result, ctx.Err()
}

func hasTitle(titles map[string]struct{}, title string) bool {
	_, ok := titles[title]
	return ok
}

// PosterName returns name of poster entry paired with video entry.
func (r *Reconciler) PosterName(video string) string {
	return PosterEntry(video, r.opts.PosterSuffix)
}

// PosterEntry replaces video entry extension with poster suffix.
func PosterEntry(video, suffix string) string {
	return strings.TrimSuffix(video, path.Ext(video)) + suffix
}

func (r *Reconciler) reconcileEntry(ctx context.Context, arc *archive.Archive, t task) (item story.MediaItem, patch Patch, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Media conversion panicked", zap.String("entry", t.entry.Name), zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %s: panic: %v", ErrAssetConversion, t.entry.Name, rec)
		}
	}()

	file, converted, err := r.convert(ctx, arc, t.entry.Name, t.res.MimeType)
	if err != nil {
		return item, patch, err
	}

	item = story.MediaItem{
		ID:       t.id,
		Src:      converted.Src,
		Local:    false,
		Type:     cmp.Or(t.res.Type, converted.Type),
		MimeType: cmp.Or(t.res.MimeType, converted.MimeType),
		Title:    cmp.Or(t.res.Title, converted.Title),
		Alt:      cmp.Or(t.res.Alt, converted.Alt),
		Width:    int(cmp.Or(t.res.Width, converted.Width)),
		Height:   int(cmp.Or(t.res.Height, converted.Height)),
		File:     file,
	}
	patch = Patch{Ref: t.ref, Src: converted.Src}

	if t.res.Type == common.ResourceTypeVideo.String() {
		name := r.PosterName(t.entry.Name)
		if !arc.Has(name) {
			r.log.Debug("Video has no poster", zap.String("entry", t.entry.Name))
			return item, patch, nil
		}
		posterType := cmp.Or(mime.TypeByExtension(path.Ext(name)), "image/jpeg")
		if _, poster, err := r.convert(ctx, arc, name, posterType); err != nil {
			r.log.Warn("Unable to import video poster, continuing without it", zap.String("entry", name), zap.Error(err))
		} else {
			item.Poster = poster.Src
			patch.Poster = poster.Src
		}
	}
	return item, patch, nil
}

func (r *Reconciler) convert(ctx context.Context, arc *archive.Archive, name, mimeType string) (*story.File, *story.Resource, error) {
	data, err := arc.ReadBlob(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrAssetConversion, err)
	}
	file := &story.File{Name: path.Base(name), MimeType: mimeType, Data: data}
	res, err := r.conv.ResourceFromFile(ctx, file)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrAssetConversion, name, err)
	}
	if res == nil || res.Src == "" {
		return nil, nil, fmt.Errorf("%w: %s: converter returned no reference", ErrAssetConversion, name)
	}
	return file, res, nil
}
