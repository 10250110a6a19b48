package importer

import (
	"encoding/json"

	"wsi/story"
)

// MergeState builds story state to install. Capabilities always come from
// current state, story is current story overlaid by imported one and pages
// are replaced completely.
func MergeState(current story.State, desc *story.Descriptor, pages []story.Page) story.State {
	extra := desc.Extra.Clone()
	delete(extra, "capabilities")

	st := story.State{
		Story:        current.Story.Overlay(desc.Story),
		Pages:        pages,
		Capabilities: current.Capabilities,
		Extra:        extra,
	}
	// non string or missing title becomes empty
	if _, ok := desc.Story.StringOK("title"); !ok {
		st.Story["title"] = json.RawMessage(`""`)
	}
	if st.Pages == nil {
		st.Pages = []story.Page{}
	}
	return st
}

// Duplicate is imported item dropped in favour of existing one with the same
// key.
type Duplicate struct {
	Imported story.MediaItem
	Existing story.MediaItem
}

// MergeMedia appends imported items to prev skipping those whose key (alt or
// title) is already present there. Imported ids clashing with prev are
// renumbered. Returns merged collection, number of items added and skipped
// duplicates.
func MergeMedia(prev, imported []story.MediaItem) ([]story.MediaItem, int, []Duplicate) {
	keys := make(map[string]story.MediaItem, len(prev))
	ids := make(map[int]struct{}, len(prev))
	for i := range prev {
		if k := prev[i].Key(); k != "" {
			if _, seen := keys[k]; !seen {
				keys[k] = prev[i]
			}
		}
		ids[prev[i].ID] = struct{}{}
	}
	next := max(story.MaxID(prev), story.MaxID(imported)) + 1

	var dups []Duplicate
	out := make([]story.MediaItem, len(prev), len(prev)+len(imported))
	copy(out, prev)
	for _, item := range imported {
		if existing, dup := keys[item.Key()]; dup {
			dups = append(dups, Duplicate{Imported: item, Existing: existing})
			continue
		}
		if _, used := ids[item.ID]; used {
			item.ID = next
			next++
		}
		ids[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out, len(out) - len(prev), dups
}

// Repoint makes elements referencing dropped duplicates use existing items
// instead. Pages are changed in place. Existing items without reference are
// not used.
func Repoint(pages []story.Page, dups []Duplicate) {
	if len(dups) == 0 {
		return
	}
	bySrc := make(map[string]Duplicate, len(dups))
	for _, d := range dups {
		if d.Existing.Src != "" {
			bySrc[d.Imported.Src] = d
		}
	}
	for i := range pages {
		for j := range pages[i].Elements {
			res := pages[i].Elements[j].Resource
			if res == nil {
				continue
			}
			d, ok := bySrc[res.Src]
			if !ok {
				continue
			}
			res.Src = d.Existing.Src
			if res.Poster == d.Imported.Poster {
				res.Poster = d.Existing.Poster
			}
		}
	}
}
