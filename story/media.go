package story

// File is binary payload of an asset together with the name and media type
// it is known by.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// MediaItem is an asset in the media library.
type MediaItem struct {
	ID       int    `json:"id"`
	Src      string `json:"src"`
	Local    bool   `json:"local"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType"`
	Title    string `json:"title"`
	Alt      string `json:"alt"`
	Poster   string `json:"poster,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`

	// Imported payload, available only during the session which imported it.
	File *File `json:"-"`
}

// Key identifies item for duplicate detection: alt text, or title when alt
// is empty. Items with empty key are never duplicates.
func (m *MediaItem) Key() string {
	if m.Alt != "" {
		return m.Alt
	}
	return m.Title
}

// MaxID returns largest item id in media collection.
func MaxID(items []MediaItem) int {
	id := 0
	for i := range items {
		id = max(id, items[i].ID)
	}
	return id
}
