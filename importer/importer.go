// Package importer restores story from exported story package: it validates
// the container, reads project descriptor, imports referenced media and
// installs merged state.
package importer

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"wsi/archive"
	"wsi/common"
	"wsi/config"
	"wsi/descriptor"
	"wsi/media"
	"wsi/reconcile"
	"wsi/state"
	"wsi/story"
	storydebug "wsi/utils/debug"
)

var ErrNoFile = fmt.Errorf("%w: no file selected", archive.ErrInvalidContainer)

// Messages shown to user.
const (
	MsgWrongFile       = "Please upload the zip file previously downloaded from this tool"
	MsgIncompatible    = "Zip file is not compatible with this tool"
	MsgInvalidConfig   = "Invalid configuration in the uploaded zip"
	MsgNothingImported = "None of the media files used by the story could be imported"
	MsgFailed          = "Unable to import story"
)

// Notification is a message for user.
type Notification struct {
	Message     string
	Dismissable bool
}

// StoryStore owns live story state.
type StoryStore interface {
	ReducerState() story.State
	Restore(story.State) error
}

// FileRequester asks user to select files to import.
type FileRequester interface {
	RequestFiles(ctx context.Context) ([]archive.Source, error)
}

// Deps are collaborators importer works with. Converter, Library and Store
// are required.
type Deps struct {
	Converter    media.Converter
	Library      media.Library
	Store        StoryStore
	Requester    FileRequester
	SetImporting func(importing bool)
	Notify       func(Notification)
	// Called on every stage transition.
	OnStage func(common.ImportStage)
}

// Importer runs imports one at a time.
type Importer struct {
	cfg      *config.ImportConfig
	codePage encoding.Encoding
	rpt      *config.Report
	log      *zap.Logger
	deps     Deps
	rec      *reconcile.Reconciler

	run   sync.Mutex
	mu    sync.Mutex
	stage common.ImportStage
}

func New(env *state.LocalEnv, deps Deps) *Importer {
	log := env.Log.Named("import")
	if deps.SetImporting == nil {
		deps.SetImporting = func(bool) {}
	}
	if deps.Notify == nil {
		deps.Notify = func(n Notification) { log.Info(n.Message) }
	}
	cfg := &env.Cfg.Import
	return &Importer{
		cfg:      cfg,
		codePage: env.CodePage,
		rpt:      env.Rpt,
		log:      log,
		deps:     deps,
		rec: reconcile.New(deps.Converter, reconcile.Options{
			DescriptorName: cfg.DescriptorName,
			PosterSuffix:   cfg.PosterSuffix,
			Concurrency:    cfg.Concurrency,
		}, env.Log),
	}
}

// Stage returns current stage of running import, Idle when nothing runs.
func (im *Importer) Stage() common.ImportStage {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.stage
}

func (im *Importer) setStage(s common.ImportStage) {
	im.mu.Lock()
	im.stage = s
	im.mu.Unlock()

	im.log.Debug("Import stage", zap.Stringer("stage", s))
	if im.deps.OnStage != nil {
		im.deps.OnStage(s)
	}
}

// ImportStory asks requester for files and imports the first one.
func (im *Importer) ImportStory(ctx context.Context) (*Report, error) {
	if im.deps.Requester == nil {
		return nil, errors.New("no file requester configured")
	}
	files, err := im.deps.Requester.RequestFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to request files: %w", err)
	}
	return im.Import(ctx, files)
}

// Import restores story from the first of selected files. Story state and
// media library are changed only when import succeeds. Per media failures do
// not fail import and are listed in returned report.
func (im *Importer) Import(ctx context.Context, files []archive.Source) (rep *Report, err error) {
	im.run.Lock()
	defer im.run.Unlock()

	start := time.Now()
	rep = &Report{}

	im.deps.SetImporting(true)
	defer func() {
		if r := recover(); r != nil {
			im.log.Error("Import panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			im.deps.Notify(Notification{Message: MsgFailed})
			err = fmt.Errorf("import panicked: %v", r)
		}
		rep.Elapsed = time.Since(start)
		if err != nil {
			rep.Stage = common.ImportStageFailed
			rep.Error = err.Error()
			im.log.Warn("Import failed", reportField(rep), zap.Error(err))
		} else {
			rep.Stage = common.ImportStageInstalled
			im.log.Info("Story imported", reportField(rep))
		}
		im.setStage(rep.Stage)
		im.rpt.StoreData("import-report.json", rep.json())
		im.deps.SetImporting(false)
		im.setStage(common.ImportStageIdle)
	}()

	im.setStage(common.ImportStageValidating)
	if len(files) == 0 {
		im.deps.Notify(Notification{Message: MsgWrongFile, Dismissable: true})
		return rep, ErrNoFile
	}
	if len(files) > 1 {
		im.log.Warn("Several files selected, only the first one is imported", zap.Int("count", len(files)), zap.String("file", files[0].Name))
	}
	src := files[0]
	rep.Archive = src.Name

	arc, err := archive.Open(src, archive.Options{
		Accepted:     im.cfg.AcceptedTypes,
		CodePage:     im.codePage,
		MaxEntrySize: im.cfg.MaxEntrySize,
	})
	if err != nil {
		im.deps.Notify(Notification{Message: MsgWrongFile, Dismissable: true})
		return rep, err
	}

	im.setStage(common.ImportStageExtracting)
	desc, raw, err := descriptor.Parse(arc, descriptor.Options{Name: im.cfg.DescriptorName, Strict: im.cfg.StrictSchema})
	if raw != nil {
		im.rpt.StoreData(cmp.Or(im.cfg.DescriptorName, descriptor.DefaultName), raw)
	}
	switch {
	case errors.Is(err, descriptor.ErrMissingDescriptor):
		im.deps.Notify(Notification{Message: MsgIncompatible})
		return rep, err
	case err != nil:
		im.deps.Notify(Notification{Message: MsgInvalidConfig})
		return rep, err
	}
	rep.Referenced = desc.MediaReferences()

	im.setStage(common.ImportStageReconciling)
	current := im.deps.Store.ReducerState()
	existing, err := im.deps.Library.Current(ctx)
	if err != nil {
		im.deps.Notify(Notification{Message: MsgFailed})
		return rep, fmt.Errorf("unable to read media library: %w", err)
	}
	res, err := im.rec.Reconcile(ctx, arc, reconcile.NewIndex(desc.Pages), existing)
	if err != nil {
		im.discard(res.Items...)
		im.deps.Notify(Notification{Message: MsgFailed})
		return rep, err
	}
	rep.addReconciled(res)

	if im.cfg.ReportEmpty && rep.Referenced > 0 && rep.Reconciled == 0 && rep.Duplicates == 0 {
		rep.Warning = MsgNothingImported
		im.log.Warn("Story references media but none could be imported", zap.Int("referenced", rep.Referenced), zap.Int("failed", rep.Failed()))
		im.deps.Notify(Notification{Message: MsgNothingImported})
	}

	im.setStage(common.ImportStageMerging)
	next := MergeState(current, desc, reconcile.Apply(desc.Pages, res.Patches))
	if err := im.install(ctx, &next, res.Items, rep); err != nil {
		im.deps.Notify(Notification{Message: MsgFailed})
		return rep, err
	}
	if data, err := json.MarshalIndent(next, "", "  "); err == nil {
		im.rpt.StoreData("state.json", data)
	}
	im.rpt.StoreData("state.txt", []byte(storydebug.StateTree(next)))
	return rep, nil
}

// install updates media library and story state. When story state cannot be
// restored items added to library are taken back. Files of imported items
// which are not in library at the end are discarded.
func (im *Importer) install(ctx context.Context, next *story.State, items []story.MediaItem, rep *Report) error {
	var (
		added []int
		dups  []Duplicate
	)
	err := im.deps.Library.Update(ctx, func(prev []story.MediaItem) []story.MediaItem {
		merged, n, d := MergeMedia(prev, items)
		added, dups = added[:0], d
		for _, it := range merged[len(merged)-n:] {
			added = append(added, it.ID)
		}
		return merged
	})
	if err != nil {
		im.discard(items...)
		return fmt.Errorf("unable to update media library: %w", err)
	}
	rep.Added = len(added)
	rep.Duplicates += len(dups)

	Repoint(next.Pages, dups)
	if err := im.deps.Store.Restore(*next); err != nil {
		rerr := im.deps.Library.Update(context.WithoutCancel(ctx), func(prev []story.MediaItem) []story.MediaItem {
			return slices.DeleteFunc(prev, func(it story.MediaItem) bool { return slices.Contains(added, it.ID) })
		})
		if rerr != nil {
			// library still references the files
			im.log.Error("Unable to roll back media library", zap.Error(rerr))
			return fmt.Errorf("unable to restore story state: %w", err)
		}
		im.discard(items...)
		return fmt.Errorf("unable to restore story state: %w", err)
	}
	for _, d := range dups {
		if d.Existing.Src != "" {
			im.discard(d.Imported)
		}
	}
	return nil
}

// discard releases stored payload of items when converter supports it.
func (im *Importer) discard(items ...story.MediaItem) {
	d, ok := im.deps.Converter.(media.Discarder)
	if !ok {
		return
	}
	for _, it := range items {
		for _, src := range []string{it.Src, it.Poster} {
			if src == "" {
				continue
			}
			if err := d.Discard(src); err != nil {
				im.log.Warn("Unable to discard imported media", zap.String("src", src), zap.Error(err))
			}
		}
	}
}
