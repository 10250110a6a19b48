// Package descriptor locates and decodes project descriptor of exported
// story package.
package descriptor

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"wsi/archive"
	"wsi/story"
)

// DefaultName is the archive entry holding project descriptor.
const DefaultName = "config.json"

var (
	ErrMissingDescriptor   = errors.New("missing project descriptor")
	ErrMalformedDescriptor = errors.New("malformed project descriptor")
)

//go:embed schema.json
var schemaJSON []byte

var compiled = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

type Options struct {
	// Name of descriptor entry, DefaultName when empty.
	Name string
	// Strict requires descriptor to match expected shape, otherwise only
	// decodability is checked and missing optional fields are tolerated.
	Strict bool
}

// Parse reads project descriptor from archive.
func Parse(arc *archive.Archive, opts Options) (*story.Descriptor, []byte, error) {
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	if !arc.Has(name) {
		return nil, nil, fmt.Errorf("%w: no '%s' in archive", ErrMissingDescriptor, name)
	}

	text, err := arc.ReadText(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unable to read '%s': %w", ErrMalformedDescriptor, name, err)
	}
	data := []byte(text)
	d, err := Decode(data)
	if err != nil {
		return nil, data, err
	}
	if opts.Strict {
		if err := Validate(data); err != nil {
			return nil, data, err
		}
	}
	return d, data, nil
}

// Decode decodes descriptor text. Anything which is not a JSON object is
// malformed.
func Decode(data []byte) (*story.Descriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedDescriptor)
	}
	var d story.Descriptor
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDescriptor, err)
	}
	return &d, nil
}

// Validate checks descriptor text against expected project shape.
func Validate(data []byte) error {
	schema, err := compiled()
	if err != nil {
		return fmt.Errorf("invalid descriptor schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedDescriptor, err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrMalformedDescriptor, strings.Join(errs, "; "))
	}
	return nil
}
