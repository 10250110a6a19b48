package story

import (
	"encoding/json"

	"wsi/common"
)

// Resource describes media asset attached to element. In exported descriptor
// Src is archive relative path of the asset.
type Resource struct {
	Src      string `json:"src"`
	Type     string `json:"type,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Title    string `json:"title,omitempty"`
	Alt      string `json:"alt,omitempty"`
	Poster   string `json:"poster,omitempty"`
	// Exported by the editor as plain JSON numbers, not always integral.
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	Extra Object `json:"-"`
}

type resourceFields Resource

func (r *Resource) UnmarshalJSON(data []byte) error {
	var f resourceFields
	extra, err := splitKnown(data, &f, "src", "type", "mimeType", "title", "alt", "poster", "width", "height")
	if err != nil {
		return err
	}
	*r = Resource(f)
	r.Extra = extra
	return nil
}

func (r Resource) MarshalJSON() ([]byte, error) {
	return joinKnown(resourceFields(r), r.Extra)
}

// IsMedia reports whether resource could be reconciled as media item.
func (r *Resource) IsMedia() bool {
	return r != nil && common.IsMedia(r.Type)
}

func (r *Resource) Clone() *Resource {
	if r == nil {
		return nil
	}
	c := *r
	c.Extra = r.Extra.Clone()
	return &c
}

// Element is a single item on a page.
type Element struct {
	ID       string    `json:"id,omitempty"`
	Type     string    `json:"type,omitempty"`
	Resource *Resource `json:"resource,omitempty"`

	Extra Object `json:"-"`
}

type elementFields Element

func (e *Element) UnmarshalJSON(data []byte) error {
	var f elementFields
	extra, err := splitKnown(data, &f, "id", "type", "resource")
	if err != nil {
		return err
	}
	*e = Element(f)
	e.Extra = extra
	return nil
}

func (e Element) MarshalJSON() ([]byte, error) {
	return joinKnown(elementFields(e), e.Extra)
}

func (e *Element) Clone() Element {
	c := *e
	c.Resource = e.Resource.Clone()
	c.Extra = e.Extra.Clone()
	return c
}

// Page is an ordered list of elements.
type Page struct {
	ID       string    `json:"id,omitempty"`
	Elements []Element `json:"elements"`

	Extra Object `json:"-"`
}

type pageFields Page

func (p *Page) UnmarshalJSON(data []byte) error {
	var f pageFields
	extra, err := splitKnown(data, &f, "id", "elements")
	if err != nil {
		return err
	}
	*p = Page(f)
	p.Extra = extra
	return nil
}

func (p Page) MarshalJSON() ([]byte, error) {
	if p.Elements == nil {
		p.Elements = []Element{}
	}
	return joinKnown(pageFields(p), p.Extra)
}

// ClonePages makes deep copy of pages, so patches could be applied without
// touching the source.
func ClonePages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i := range pages {
		out[i] = pages[i]
		out[i].Extra = pages[i].Extra.Clone()
		if pages[i].Elements != nil {
			out[i].Elements = make([]Element, len(pages[i].Elements))
			for j := range pages[i].Elements {
				out[i].Elements[j] = pages[i].Elements[j].Clone()
			}
		}
	}
	return out
}

// Descriptor is decoded project description from exported archive.
type Descriptor struct {
	Story Object `json:"story"`
	Pages []Page `json:"pages"`

	// Everything else exported with the story (current page, selection and
	// so on) is restored as is.
	Extra Object `json:"-"`
}

type descriptorFields Descriptor

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var f descriptorFields
	extra, err := splitKnown(data, &f, "story", "pages")
	if err != nil {
		return err
	}
	*d = Descriptor(f)
	d.Extra = extra
	return nil
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	return joinKnown(descriptorFields(d), d.Extra)
}

// MediaReferences counts elements with reconcilable media resources.
func (d *Descriptor) MediaReferences() int {
	count := 0
	for i := range d.Pages {
		for j := range d.Pages[i].Elements {
			if d.Pages[i].Elements[j].Resource.IsMedia() {
				count++
			}
		}
	}
	return count
}

// State is the live editable state of a story.
type State struct {
	Story        Object          `json:"story"`
	Pages        []Page          `json:"pages"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`

	Extra Object `json:"-"`
}

type stateFields State

func (s *State) UnmarshalJSON(data []byte) error {
	var f stateFields
	extra, err := splitKnown(data, &f, "story", "pages", "capabilities")
	if err != nil {
		return err
	}
	*s = State(f)
	s.Extra = extra
	return nil
}

func (s State) MarshalJSON() ([]byte, error) {
	if s.Pages == nil {
		s.Pages = []Page{}
	}
	return joinKnown(stateFields(s), s.Extra)
}

// Title returns story title.
func (s *State) Title() string {
	return s.Story.String("title")
}
