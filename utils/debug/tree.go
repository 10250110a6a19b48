// Package debug renders story structures as indented text for troubleshooting.
package debug

import (
	"fmt"
	"strconv"
	"strings"

	"wsi/story"
)

type TreeWriter struct {
	w *strings.Builder
}

func NewTreeWriter() *TreeWriter {
	return &TreeWriter{w: &strings.Builder{}}
}

func (tw TreeWriter) String() string {
	return tw.w.String()
}

func (tw TreeWriter) indent(depth int) {
	for range depth {
		tw.w.WriteString("  ")
	}
}

func (tw TreeWriter) Line(depth int, format string, args ...any) {
	tw.indent(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// Field writes quoted value under label, empty values are skipped.
func (tw TreeWriter) Field(depth int, label, value string) {
	if value == "" {
		return
	}
	tw.indent(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(strconv.Quote(value))
	tw.w.WriteByte('\n')
}

// Resource writes resource reference and its presentation attributes.
func (tw TreeWriter) Resource(depth int, res *story.Resource) {
	if res == nil {
		return
	}
	tw.Line(depth, "resource %s %q", res.Type, res.Src)
	tw.Field(depth+1, "mime", res.MimeType)
	tw.Field(depth+1, "title", res.Title)
	tw.Field(depth+1, "alt", res.Alt)
	tw.Field(depth+1, "poster", res.Poster)
	if res.Width > 0 || res.Height > 0 {
		tw.Line(depth+1, "size: %gx%g", res.Width, res.Height)
	}
}

// Pages writes every page with its elements.
func (tw TreeWriter) Pages(depth int, pages []story.Page) {
	for i := range pages {
		p := &pages[i]
		tw.Line(depth, "page %d %q (%d elements)", i+1, p.ID, len(p.Elements))
		for j := range p.Elements {
			el := &p.Elements[j]
			tw.Line(depth+1, "element %q %s", el.ID, el.Type)
			tw.Resource(depth+2, el.Resource)
		}
	}
}

// StateTree renders story state.
func StateTree(st story.State) string {
	tw := NewTreeWriter()
	tw.Line(0, "story")
	tw.Field(1, "title", st.Title())
	tw.Pages(1, st.Pages)
	return tw.String()
}
