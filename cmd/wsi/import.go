package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"wsi/archive"
	"wsi/importer"
	"wsi/library"
	"wsi/media"
	"wsi/state"
	"wsi/story"
)

const defaultStateFile = "story.json"

// fileRequester hands archive from command line to importer, opened files are
// closed by close.
type fileRequester struct {
	names []string
	files []*os.File
}

func (r *fileRequester) RequestFiles(_ context.Context) ([]archive.Source, error) {
	srcs := make([]archive.Source, 0, len(r.names))
	for _, name := range r.names {
		src, f, err := archive.SourceFromFile(name)
		if err != nil {
			return nil, fmt.Errorf("unable to open story package '%s': %w", name, err)
		}
		r.files = append(r.files, f)
		srcs = append(srcs, src)
	}
	return srcs, nil
}

func (r *fileRequester) close() (err error) {
	for _, f := range r.files {
		err = multierr.Append(err, f.Close())
	}
	r.files = nil
	return
}

// Since zip "standard" does not define file name encoding we may need to
// force archaic code page for old archives
func setCodePage(env *state.LocalEnv, cp string) {
	if len(cp) == 0 {
		return
	}
	var err error
	env.CodePage, err = ianaindex.IANA.Encoding(cp)
	if err != nil || env.CodePage == nil {
		env.Log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		env.CodePage = nil
		return
	}
	n, _ := ianaindex.IANA.Name(env.CodePage)
	env.Log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
}

func openLibrary(env *state.LocalEnv) (media.Library, func() error, error) {
	path := env.Cfg.Library.Path
	if len(path) == 0 {
		env.Log.Debug("Media library is kept in memory")
		return media.NewMemoryLibrary(), func() error { return nil }, nil
	}
	lib, err := library.Open(path, env.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open media library: %w", err)
	}
	return lib, lib.Close, nil
}

func runImport(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("cli")

	if cmd.Args().Len() == 0 {
		return errors.New("no story package has been specified")
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	src := cmd.Args().Get(0)
	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		dst = defaultStateFile
	}

	if dir := cmd.String("media-dir"); len(dir) > 0 {
		env.Cfg.Media.Directory = dir
	}
	if path := cmd.String("library"); len(path) > 0 {
		env.Cfg.Library.Path = path
	}
	setCodePage(env, cmd.String("force-zip-cp"))

	store, err := story.OpenFileStore(dst)
	if err != nil {
		return fmt.Errorf("unable to open story state: %w", err)
	}
	conv, err := media.NewLocalConverter(&env.Cfg.Media, env.Log)
	if err != nil {
		return fmt.Errorf("unable to prepare media directory: %w", err)
	}
	lib, closeLib, err := openLibrary(env)
	if err != nil {
		return err
	}
	defer func() {
		if er := closeLib(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close media library: %w", er))
		}
	}()

	req := &fileRequester{names: []string{src}}
	defer func() {
		if er := req.close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close story package: %w", er))
		}
	}()

	env.Rpt.Store(fmt.Sprintf("archive/%s", filepath.Base(src)), src)

	log.Info("Import starting", zap.String("source", src), zap.String("state", store.Path()), zap.String("media", conv.Dir()))
	defer func(start time.Time) {
		log.Info("Import completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	im := importer.New(env, importer.Deps{
		Converter: conv,
		Library:   lib,
		Store:     store,
		Requester: req,
		SetImporting: func(importing bool) {
			log.Debug("Importing", zap.Bool("active", importing))
		},
		Notify: func(n importer.Notification) {
			if n.Dismissable {
				log.Warn(n.Message)
			} else {
				log.Error(n.Message)
			}
		},
	})
	rep, err := im.ImportStory(ctx)
	if err != nil {
		return err
	}
	if rep.Failed() > 0 {
		for _, f := range rep.Failures {
			log.Warn("Media was not imported", zap.String("entry", f.Entry), zap.String("reason", f.Error))
		}
	}
	log.Info("Story restored", zap.Object("report", rep))
	return nil
}
