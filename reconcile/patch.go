package reconcile

import "wsi/story"

// Patch replaces archive relative references of a single element with local
// ones. Empty Poster leaves element poster untouched.
type Patch struct {
	Ref    Ref
	Src    string
	Poster string
}

// Apply returns copy of pages with patches applied, pages are not modified.
// Patches pointing outside of pages or to elements without resource are
// ignored.
func Apply(pages []story.Page, patches []Patch) []story.Page {
	out := story.ClonePages(pages)
	for _, p := range patches {
		if p.Ref.Page < 0 || p.Ref.Page >= len(out) {
			continue
		}
		elements := out[p.Ref.Page].Elements
		if p.Ref.Element < 0 || p.Ref.Element >= len(elements) {
			continue
		}
		res := elements[p.Ref.Element].Resource
		if res == nil {
			continue
		}
		if p.Src != "" {
			res.Src = p.Src
		}
		if p.Poster != "" {
			res.Poster = p.Poster
		}
	}
	return out
}
