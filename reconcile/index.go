package reconcile

import "wsi/story"

// Ref locates element in pages.
type Ref struct {
	Page    int
	Element int
}

// Index maps archive relative resource references to elements using them.
// When several elements share a reference the first one in page order wins.
type Index struct {
	pages []story.Page
	refs  map[string]Ref
	total int
}

func NewIndex(pages []story.Page) *Index {
	ix := &Index{pages: pages, refs: make(map[string]Ref)}
	for p := range pages {
		for e := range pages[p].Elements {
			res := pages[p].Elements[e].Resource
			if res == nil || res.Src == "" {
				continue
			}
			ix.total++
			if _, ok := ix.refs[res.Src]; !ok {
				ix.refs[res.Src] = Ref{Page: p, Element: e}
			}
		}
	}
	return ix
}

// Lookup returns element referencing src.
func (ix *Index) Lookup(src string) (Ref, *story.Element, bool) {
	ref, ok := ix.refs[src]
	if !ok {
		return Ref{}, nil, false
	}
	return ref, &ix.pages[ref.Page].Elements[ref.Element], true
}

// Len returns number of distinct references.
func (ix *Index) Len() int {
	return len(ix.refs)
}

// Elements returns number of elements carrying resource reference.
func (ix *Index) Elements() int {
	return ix.total
}
