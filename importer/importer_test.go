package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"wsi/archive"
	"wsi/archive/archivetest"
	"wsi/common"
	"wsi/config"
	"wsi/descriptor"
	"wsi/media"
	"wsi/state"
	"wsi/story"
)

type memoryStore struct {
	state      story.State
	restored   int
	failErr    error
	panicState bool
}

func (s *memoryStore) ReducerState() story.State {
	if s.panicState {
		panic("store is broken")
	}
	return s.state
}

func (s *memoryStore) Restore(st story.State) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.state = st
	s.restored++
	return nil
}

type host struct {
	mu        sync.Mutex
	importing []bool
	notes     []Notification
	stages    []common.ImportStage
}

func (h *host) deps(store StoryStore, lib media.Library, conv media.Converter) Deps {
	return Deps{
		Converter: conv,
		Library:   lib,
		Store:     store,
		SetImporting: func(v bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.importing = append(h.importing, v)
		},
		Notify: func(n Notification) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notes = append(h.notes, n)
		},
		OnStage: func(s common.ImportStage) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.stages = append(h.stages, s)
		},
	}
}

func (h *host) checkImportingCleared(t *testing.T) {
	t.Helper()
	if len(h.importing) != 2 || !h.importing[0] || h.importing[1] {
		t.Errorf("importing flag history = %v, want [true false]", h.importing)
	}
}

func testEnv(t *testing.T) *state.LocalEnv {
	t.Helper()

	env := state.EnvFromContext(state.ContextWithEnv(context.Background()))
	env.Log = zaptest.NewLogger(t)
	env.Cfg = &config.Config{
		Import: config.ImportConfig{
			AcceptedTypes:  []string{"application/zip", "application/x-zip-compressed"},
			DescriptorName: descriptor.DefaultName,
			PosterSuffix:   "-poster.jpeg",
			ReportEmpty:    true,
		},
	}
	return env
}

type fixture struct {
	h     *host
	store *memoryStore
	lib   *media.MemoryLibrary
	conv  *media.LocalConverter
	im    *Importer
}

func newFixture(t *testing.T, items ...story.MediaItem) *fixture {
	t.Helper()

	conv, err := media.NewLocalConverter(&config.MediaConfig{Directory: t.TempDir(), JPEGQuality: 75, VerifyContent: true}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		h: &host{},
		store: &memoryStore{state: story.State{
			Story:        story.Object{"title": json.RawMessage(`"Current"`), "status": json.RawMessage(`"draft"`)},
			Pages:        []story.Page{{ID: "current-page"}},
			Capabilities: json.RawMessage(`{"hasUploadMediaAction": true,  "canManageSettings": false}`),
		}},
		lib:  media.NewMemoryLibrary(items...),
		conv: conv,
	}
	f.im = New(testEnv(t), f.h.deps(f.store, f.lib, f.conv))
	return f
}

// files lists names stored in media directory.
func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.conv.Dir())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (f *fixture) media(t *testing.T) []story.MediaItem {
	t.Helper()
	items, err := f.lib.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return items
}

const catConfig = `{"story":{"title":"Imported"},"pages":[{"elements":[{"resource":{"src":"a.jpg","type":"image","mimeType":"image/jpeg","title":"Cat"}}]}]}`

func TestImportCat(t *testing.T) {
	f := newFixture(t)
	src := archivetest.Source(archivetest.Zip(t,
		archivetest.Text("config.json", catConfig),
		archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 8, 8)},
	))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	items := f.media(t)
	if len(items) != 1 {
		t.Fatalf("expected exactly one media item, got %+v", items)
	}
	if items[0].Title != "Cat" || items[0].Local || items[0].Type != "image" || items[0].MimeType != "image/jpeg" {
		t.Errorf("unexpected media item %+v", items[0])
	}
	if items[0].File == nil || !strings.HasPrefix(items[0].Src, media.Scheme+"://") {
		t.Errorf("media item must carry payload and local reference: %+v", items[0])
	}

	st := f.store.state
	if st.Title() != "Imported" {
		t.Errorf("title = %q, want Imported", st.Title())
	}
	if st.Story.String("status") != "draft" {
		t.Error("current story fields not overridden by import must be kept")
	}
	if got := st.Pages[0].Elements[0].Resource.Src; got != items[0].Src {
		t.Errorf("element src = %q, want %q", got, items[0].Src)
	}
	if _, err := f.conv.Path(items[0].Src); err != nil {
		t.Errorf("element must reference stored file: %v", err)
	}

	if rep.Stage != common.ImportStageInstalled || rep.Referenced != 1 || rep.Reconciled != 1 || rep.Added != 1 || rep.Failed() != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
	f.h.checkImportingCleared(t)
	want := []common.ImportStage{
		common.ImportStageValidating, common.ImportStageExtracting, common.ImportStageReconciling,
		common.ImportStageMerging, common.ImportStageInstalled, common.ImportStageIdle,
	}
	if !slices.Equal(f.h.stages, want) {
		t.Errorf("stages = %v, want %v", f.h.stages, want)
	}
	if len(f.h.notes) != 0 {
		t.Errorf("unexpected notifications %+v", f.h.notes)
	}
	if f.im.Stage() != common.ImportStageIdle {
		t.Errorf("Stage() = %v after import", f.im.Stage())
	}
}

func TestImportWithoutMedia(t *testing.T) {
	existing := story.MediaItem{ID: 5, Title: "Old", Src: "local-media://old.jpg"}
	f := newFixture(t, existing)
	cfg := `{"story":{"title":"Text only","lang":"de"},"pages":[{"id":"a","elements":[{"id":"t","type":"text"}]},{"id":"b","elements":[]}]}`
	src := archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", cfg)))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	want, _ := descriptor.Decode([]byte(cfg))
	got := f.store.state
	if a, b := mustJSON(t, got.Pages), mustJSON(t, want.Pages); a != b {
		t.Errorf("pages = %s, want %s", a, b)
	}
	if got.Title() != "Text only" || got.Story.String("lang") != "de" {
		t.Errorf("story = %v", got.Story)
	}
	if items := f.media(t); len(items) != 1 || items[0] != existing {
		t.Errorf("media must be unchanged, got %+v", items)
	}
	if rep.Warning != "" || len(f.h.notes) != 0 {
		t.Errorf("no warning expected, got %q %+v", rep.Warning, f.h.notes)
	}
}

func TestImportFailures(t *testing.T) {
	tests := []struct {
		name    string
		files   func(t *testing.T) []archive.Source
		wantErr error
		message string
		dismiss bool
	}{
		{
			name:    "no file",
			files:   func(*testing.T) []archive.Source { return nil },
			wantErr: ErrNoFile,
			message: MsgWrongFile,
			dismiss: true,
		},
		{
			name: "wrong declared type",
			files: func(t *testing.T) []archive.Source {
				src := archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", catConfig)))
				src.Type = "application/json"
				return []archive.Source{src}
			},
			wantErr: archive.ErrInvalidContainer,
			message: MsgWrongFile,
			dismiss: true,
		},
		{
			name: "not a zip",
			files: func(t *testing.T) []archive.Source {
				return []archive.Source{archivetest.Source([]byte(catConfig))}
			},
			wantErr: archive.ErrInvalidContainer,
			message: MsgWrongFile,
			dismiss: true,
		},
		{
			name: "missing config",
			files: func(t *testing.T) []archive.Source {
				return []archive.Source{archivetest.Source(archivetest.Zip(t, archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 4, 4)}))}
			},
			wantErr: descriptor.ErrMissingDescriptor,
			message: MsgIncompatible,
		},
		{
			name: "malformed config",
			files: func(t *testing.T) []archive.Source {
				return []archive.Source{archivetest.Source(archivetest.Zip(t,
					archivetest.Text("config.json", `{"story":{"title":"Imported"},"pages":[`),
					archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 4, 4)},
				))}
			},
			wantErr: descriptor.ErrMalformedDescriptor,
			message: MsgInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, story.MediaItem{ID: 1, Title: "Existing"})
			before := mustJSON(t, f.store.state)

			rep, err := f.im.Import(context.Background(), tt.files(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Import() error = %v, want %v", err, tt.wantErr)
			}
			if rep.Stage != common.ImportStageFailed {
				t.Errorf("stage = %v, want failed", rep.Stage)
			}
			f.h.checkImportingCleared(t)
			if len(f.h.notes) != 1 || f.h.notes[0].Message != tt.message || f.h.notes[0].Dismissable != tt.dismiss {
				t.Errorf("notifications = %+v, want %q", f.h.notes, tt.message)
			}
			if f.store.restored != 0 || mustJSON(t, f.store.state) != before {
				t.Error("story state must stay unchanged")
			}
			if items := f.media(t); len(items) != 1 {
				t.Errorf("media must stay unchanged, got %+v", items)
			}
			last := f.h.stages[len(f.h.stages)-2:]
			if last[0] != common.ImportStageFailed || last[1] != common.ImportStageIdle {
				t.Errorf("stages = %v, must end with failed, idle", f.h.stages)
			}
		})
	}
}

func TestImportTwice(t *testing.T) {
	f := newFixture(t)
	data := archivetest.Zip(t,
		archivetest.Text("config.json", catConfig),
		archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 8, 8)},
	)

	if _, err := f.im.Import(context.Background(), []archive.Source{archivetest.Source(data)}); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	rep, err := f.im.Import(context.Background(), []archive.Source{archivetest.Source(data)})
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}

	cats := 0
	for _, it := range f.media(t) {
		if it.Title == "Cat" {
			cats++
		}
	}
	if cats != 1 {
		t.Errorf("expected single Cat after second import, got %d", cats)
	}
	if rep.Added != 0 || rep.Duplicates != 1 || rep.Warning != "" {
		t.Errorf("unexpected second report %+v", rep)
	}
}

const clipConfig = `{"story":{"title":"Video"},"pages":[{"elements":[{"id":"v","resource":{"src":"media/clip.mp4","type":"video","mimeType":"video/mp4","title":"Clip"}}]}]}`

func TestImportVideoPoster(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		f := newFixture(t)
		src := archivetest.Source(archivetest.Zip(t,
			archivetest.Text("config.json", clipConfig),
			archivetest.Text("media/clip.mp4", "not really a video"),
			archivetest.File{Name: "media/clip-poster.jpeg", Content: archivetest.JPEG(t, 16, 9)},
		))
		rep, err := f.im.Import(context.Background(), []archive.Source{src})
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		items := f.media(t)
		if len(items) != 1 || items[0].Poster == "" {
			t.Fatalf("video item must have poster, got %+v", items)
		}
		res := f.store.state.Pages[0].Elements[0].Resource
		if res.Poster != items[0].Poster || res.Src != items[0].Src {
			t.Errorf("element resource %+v does not match media item %+v", res, items[0])
		}
		if rep.Posters != 1 || rep.Ignored != 0 {
			t.Errorf("unexpected report %+v", rep)
		}
	})

	t.Run("absent", func(t *testing.T) {
		f := newFixture(t)
		src := archivetest.Source(archivetest.Zip(t,
			archivetest.Text("config.json", clipConfig),
			archivetest.Text("media/clip.mp4", "not really a video"),
		))
		if _, err := f.im.Import(context.Background(), []archive.Source{src}); err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		items := f.media(t)
		if len(items) != 1 || items[0].Poster != "" {
			t.Fatalf("unexpected items %+v", items)
		}
		if res := f.store.state.Pages[0].Elements[0].Resource; res.Poster != "" {
			t.Errorf("poster must stay unset, got %q", res.Poster)
		}
	})
}

func TestImportKeepsCapabilities(t *testing.T) {
	f := newFixture(t)
	before := bytes.Clone(f.store.state.Capabilities)
	cfg := `{"story":{"title":"Evil"},"pages":[],"capabilities":{"hasUploadMediaAction":true,"canManageSettings":true}}`

	if _, err := f.im.Import(context.Background(), []archive.Source{archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", cfg)))}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !bytes.Equal(f.store.state.Capabilities, before) {
		t.Errorf("capabilities = %s, want %s", f.store.state.Capabilities, before)
	}
}

func TestImportNothingReconciled(t *testing.T) {
	f := newFixture(t)
	src := archivetest.Source(archivetest.Zip(t,
		archivetest.Text("config.json", catConfig),
		archivetest.Text("a.jpg", "broken jpeg"),
	))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Failed() != 1 || rep.Warning != MsgNothingImported {
		t.Errorf("unexpected report %+v", rep)
	}
	if len(f.h.notes) != 1 || f.h.notes[0].Message != MsgNothingImported || f.h.notes[0].Dismissable {
		t.Errorf("notifications = %+v", f.h.notes)
	}
	if f.store.state.Title() != "Imported" || rep.Stage != common.ImportStageInstalled {
		t.Error("soft warning must not prevent install")
	}
	if got := f.store.state.Pages[0].Elements[0].Resource.Src; got != "a.jpg" {
		t.Errorf("failed asset reference must stay as is, got %q", got)
	}
	f.h.checkImportingCleared(t)
}

func TestImportPartialFailure(t *testing.T) {
	f := newFixture(t)
	cfg := `{"story":{},"pages":[{"elements":[
	  {"resource":{"src":"a.jpg","type":"image","mimeType":"image/jpeg","title":"A"}},
	  {"resource":{"src":"b.jpg","type":"image","mimeType":"image/jpeg","title":"B"}}
	]}]}`
	src := archivetest.Source(archivetest.Zip(t,
		archivetest.Text("config.json", cfg),
		archivetest.Text("a.jpg", "broken"),
		archivetest.File{Name: "b.jpg", Content: archivetest.JPEG(t, 4, 4)},
	))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if items := f.media(t); len(items) != 1 || items[0].Title != "B" {
		t.Errorf("unexpected items %+v", items)
	}
	if rep.Failed() != 1 || rep.Failures[0].Entry != "a.jpg" || rep.Warning != "" {
		t.Errorf("unexpected report %+v", rep)
	}
	if f.store.state.Title() != "" {
		t.Errorf("missing title must become empty, got %q", f.store.state.Title())
	}
}

func TestImportPanicClearsFlag(t *testing.T) {
	f := newFixture(t)
	f.store.panicState = true
	src := archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", catConfig)))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err == nil || rep.Stage != common.ImportStageFailed {
		t.Fatalf("expected failure, got %v %+v", err, rep)
	}
	f.h.checkImportingCleared(t)
	if len(f.h.notes) != 1 || f.h.notes[0].Message != MsgFailed {
		t.Errorf("notifications = %+v", f.h.notes)
	}
}

func TestImportRestoreFailureRollsBack(t *testing.T) {
	f := newFixture(t, story.MediaItem{ID: 1, Title: "Existing"})
	f.store.failErr = errors.New("disk full")
	src := archivetest.Source(archivetest.Zip(t,
		archivetest.Text("config.json", catConfig),
		archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 8, 8)},
	))

	if _, err := f.im.Import(context.Background(), []archive.Source{src}); err == nil {
		t.Fatal("expected error")
	}
	if items := f.media(t); len(items) != 1 || items[0].Title != "Existing" {
		t.Errorf("media library must be rolled back, got %+v", items)
	}
	if files := f.files(t); len(files) != 0 {
		t.Errorf("files of rolled back items must be removed, got %v", files)
	}
	f.h.checkImportingCleared(t)
}

func TestImportDuplicateByAltUsesExisting(t *testing.T) {
	existing := story.MediaItem{ID: 1, Title: "Existing", Alt: "a", Src: media.Scheme + "://existing.jpeg"}
	f := newFixture(t, existing)
	src := archivetest.Source(archivetest.Zip(t,
		archivetest.Text("config.json", catConfig),
		archivetest.File{Name: "a.jpg", Content: archivetest.JPEG(t, 8, 8)},
	))

	rep, err := f.im.Import(context.Background(), []archive.Source{src})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if rep.Reconciled != 1 || rep.Added != 0 || rep.Duplicates != 1 {
		t.Errorf("unexpected report %+v", rep)
	}
	if items := f.media(t); len(items) != 1 || items[0].ID != 1 {
		t.Errorf("library must keep only existing item, got %+v", items)
	}
	if got := f.store.state.Pages[0].Elements[0].Resource.Src; got != existing.Src {
		t.Errorf("element src = %q, want existing %q", got, existing.Src)
	}
	if files := f.files(t); len(files) != 0 {
		t.Errorf("file of dropped duplicate must be removed, got %v", files)
	}
}

type requester struct {
	files []archive.Source
	err   error
}

func (r requester) RequestFiles(context.Context) ([]archive.Source, error) {
	return r.files, r.err
}

func TestImportStory(t *testing.T) {
	f := newFixture(t)
	first := archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", `{"story":{"title":"First"},"pages":[]}`)))
	second := archivetest.Source(archivetest.Zip(t, archivetest.Text("config.json", `{"story":{"title":"Second"},"pages":[]}`)))

	deps := f.h.deps(f.store, f.lib, f.conv)
	deps.Requester = requester{files: []archive.Source{first, second}}
	im := New(testEnv(t), deps)

	if _, err := im.ImportStory(context.Background()); err != nil {
		t.Fatalf("ImportStory() error = %v", err)
	}
	if f.store.state.Title() != "First" {
		t.Errorf("only the first file must be imported, title %q", f.store.state.Title())
	}

	deps.Requester = requester{err: errors.New("dialog closed")}
	if _, err := New(testEnv(t), deps).ImportStory(context.Background()); err == nil {
		t.Error("expected requester error")
	}
	deps.Requester = nil
	if _, err := New(testEnv(t), deps).ImportStory(context.Background()); err == nil {
		t.Error("expected error without requester")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
