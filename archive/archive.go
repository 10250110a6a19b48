// Package archive gives indexed access to entries of story package container
// on top of "archive/zip".
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/h2non/filetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

var (
	ErrInvalidContainer = errors.New("invalid container")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrEntryTooLarge    = errors.New("entry too large")
)

// Enough to recognize any container signature known to filetype.
const sniffLen = 262

// Largest buffer preallocated for entry content.
const maxSizeHint = 1 << 20

// Source is a file selected for import. Type is the media type declared by
// whoever selected the file, content is not trusted to match it.
type Source struct {
	Name string
	Type string
	Size int64
	R    io.ReaderAt
}

// SourceFromFile opens file on disk as import source deriving declared type
// from file extension. Caller must close returned file.
func SourceFromFile(name string) (Source, *os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return Source{}, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return Source{}, nil, err
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return Source{}, nil, fmt.Errorf("not a regular file: %s", name)
	}
	return Source{
		Name: filepath.Base(name),
		Type: TypeByExtension(filepath.Ext(name)),
		Size: fi.Size(),
		R:    f,
	}, f, nil
}

// TypeByExtension returns declared media type for file extension the same
// way browser does for selected files.
func TypeByExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".zip":
		return "application/zip"
	case "":
		return ""
	}
	if t, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
		return t
	}
	return ""
}

// Options controls how container is opened.
type Options struct {
	// Declared types accepted as archive, empty list accepts anything.
	Accepted []string
	// When set, non UTF-8 entry names are decoded with this code page.
	CodePage encoding.Encoding
	// Entries with larger uncompressed size cannot be read, 0 - no limit.
	MaxEntrySize int64
}

// Entry is a single named file in archive.
type Entry struct {
	Name  string
	Size  int64
	Index int

	file *zip.File
}

// Archive is an ordered collection of uniquely named entries.
type Archive struct {
	entries []*Entry
	byName  map[string]*Entry
	maxSize int64
}

// Open validates declared type and content signature of src and reads its
// directory. All failures wrap ErrInvalidContainer.
func Open(src Source, opts Options) (*Archive, error) {
	if !accepted(src.Type, opts.Accepted) {
		return nil, fmt.Errorf("%w: declared type %q is not supported", ErrInvalidContainer, src.Type)
	}
	if src.R == nil || src.Size <= 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidContainer)
	}

	head := make([]byte, min(src.Size, sniffLen))
	if n, err := src.R.ReadAt(head, 0); err != nil && !(errors.Is(err, io.EOF) && n == len(head)) {
		return nil, fmt.Errorf("%w: unable to read signature: %w", ErrInvalidContainer, err)
	}
	if !filetype.Is(head, "zip") {
		return nil, fmt.Errorf("%w: content is not a zip archive", ErrInvalidContainer)
	}

	zr, err := zip.NewReader(src.R, src.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
	}

	a := &Archive{
		byName:  make(map[string]*Entry, len(zr.File)),
		maxSize: opts.MaxEntrySize,
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if opts.CodePage != nil && f.NonUTF8 {
			if n, err := opts.CodePage.NewDecoder().String(name); err == nil {
				name = n
			}
		}
		if !isSafePath(name) {
			return nil, fmt.Errorf("%w: entry %q has unsafe path (absolute or contains path traversal)", ErrInvalidContainer, name)
		}
		if _, exists := a.byName[name]; exists {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrInvalidContainer, name)
		}
		e := &Entry{Name: name, Size: int64(f.UncompressedSize64), Index: len(a.entries), file: f}
		a.entries = append(a.entries, e)
		a.byName[name] = e
	}
	return a, nil
}

func accepted(declared string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(t, declared) {
			return true
		}
	}
	return false
}

// isSafePath returns false for paths that could escape the extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}

// Len returns number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Names returns entry names in archive order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns entries in archive order.
func (a *Archive) Entries() []*Entry {
	return append([]*Entry(nil), a.entries...)
}

func (a *Archive) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

func (a *Archive) Entry(name string) (*Entry, error) {
	e, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return e, nil
}

// Open returns reader for entry content. Readers of different entries may be
// used concurrently.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	e, err := a.Entry(name)
	if err != nil {
		return nil, err
	}
	if a.maxSize > 0 && e.Size > a.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrEntryTooLarge, name, e.Size, a.maxSize)
	}
	return e.file.Open()
}

// ReadBlob returns entry content as bytes.
func (a *Archive) ReadBlob(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// declared size comes from archive author, it is only a hint
	e := a.byName[name]
	buf := bytes.NewBuffer(make([]byte, 0, min(max(e.Size, 0), maxSizeHint)))

	src := io.Reader(r)
	if a.maxSize > 0 {
		src = io.LimitReader(r, a.maxSize+1)
	}
	if _, err := io.Copy(buf, src); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", name, err)
	}
	if a.maxSize > 0 && int64(buf.Len()) > a.maxSize {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrEntryTooLarge, name, a.maxSize)
	}
	return buf.Bytes(), nil
}

// ReadText returns entry content as UTF-8 text. Byte order mark, if present,
// selects encoding and is dropped, otherwise content is expected to be UTF-8.
func (a *Archive) ReadText(name string) (string, error) {
	data, err := a.ReadBlob(name)
	if err != nil {
		return "", err
	}
	r, err := charset.NewReader(bytes.NewReader(data), "text/plain; charset=utf-8")
	if err != nil {
		return "", fmt.Errorf("unable to decode %s: %w", name, err)
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("unable to decode %s: %w", name, err)
	}
	return strings.TrimPrefix(string(text), "\ufeff"), nil
}

// WalkFunc is called for each entry visited by Walk. If an error is returned,
// processing stops.
type WalkFunc func(e *Entry) error

// Walk visits all entries in archive order skipping the ones named in skip.
func (a *Archive) Walk(walkFn WalkFunc, skip ...string) error {
	for _, e := range a.entries {
		if slices.Contains(skip, e.Name) {
			continue
		}
		if err := walkFn(e); err != nil {
			return err
		}
	}
	return nil
}
