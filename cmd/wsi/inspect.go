package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"wsi/archive"
	"wsi/common"
	"wsi/descriptor"
	"wsi/reconcile"
	"wsi/state"
	"wsi/story"
	"wsi/utils/debug"
)

func runInspect(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("cli")

	if cmd.Args().Len() == 0 {
		return errors.New("no story package has been specified")
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}
	setCodePage(env, cmd.String("force-zip-cp"))

	name := cmd.Args().Get(0)
	src, f, err := archive.SourceFromFile(name)
	if err != nil {
		return fmt.Errorf("unable to open story package '%s': %w", name, err)
	}
	defer f.Close()

	cfg := &env.Cfg.Import
	arc, err := archive.Open(src, archive.Options{
		Accepted:     cfg.AcceptedTypes,
		CodePage:     env.CodePage,
		MaxEntrySize: cfg.MaxEntrySize,
	})
	if err != nil {
		return fmt.Errorf("unable to read story package '%s': %w", name, err)
	}
	desc, _, err := descriptor.Parse(arc, descriptor.Options{Name: cfg.DescriptorName, Strict: cfg.StrictSchema})
	if err != nil {
		return fmt.Errorf("unable to read story package '%s': %w", name, err)
	}
	if err := writeInspection(os.Stdout, arc, desc, cfg.DescriptorName, cfg.PosterSuffix); err != nil {
		return err
	}
	if cmd.Bool("pages") {
		tw := debug.NewTreeWriter()
		tw.Pages(0, desc.Pages)
		fmt.Fprintf(os.Stdout, "\n%s", tw.String())
	}
	return nil
}

// writeInspection lists archive entries in natural order together with story
// element referencing each of them.
func writeInspection(w io.Writer, arc *archive.Archive, desc *story.Descriptor, descName, posterSuffix string) error {
	ix := reconcile.NewIndex(desc.Pages)

	posters := make(map[string]string)
	for _, e := range arc.Entries() {
		if _, el, ok := ix.Lookup(e.Name); ok && el.Resource.Type == common.ResourceTypeVideo.String() {
			posters[reconcile.PosterEntry(e.Name, posterSuffix)] = e.Name
		}
	}

	names := arc.Names()
	sort.Sort(natural.StringSlice(names))

	title := desc.Story.String("title")
	fmt.Fprintf(w, "Story: %q, pages: %d, elements with resources: %d, media references: %d, entries: %d\n\n",
		title, len(desc.Pages), ix.Elements(), desc.MediaReferences(), arc.Len())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tSIZE\tPAGE\tELEMENT\tTYPE\tNOTE")
	for _, n := range names {
		e, err := arc.Entry(n)
		if err != nil {
			return err
		}
		page, element, typ, note := "-", "-", "-", ""
		switch ref, el, ok := ix.Lookup(n); {
		case n == descName:
			note = "descriptor"
		case ok:
			page, element = desc.Pages[ref.Page].ID, el.ID
			typ = cmp.Or(el.Resource.Type, "?")
			if !el.Resource.IsMedia() {
				note = "not media, ignored"
			}
		case posters[n] != "":
			note = "poster of " + posters[n]
		default:
			note = "not referenced, ignored"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", n, e.Size, page, element, typ, note)
	}
	return tw.Flush()
}
