// Package media turns imported files into locally addressable resources and
// keeps media library contents.
package media

import (
	"context"
	"mime"
	"strings"

	"wsi/common"
	"wsi/story"
)

// Scheme of local references produced by LocalConverter.
const Scheme = "local-media"

// Converter makes local resource out of file payload.
type Converter interface {
	ResourceFromFile(ctx context.Context, f *story.File) (*story.Resource, error)
}

// Discarder releases payload stored for a reference its converter produced.
// Used for items which did not make it into library.
type Discarder interface {
	Discard(src string) error
}

// Library is application wide media collection.
type Library interface {
	Current(ctx context.Context) ([]story.MediaItem, error)
	// Update replaces collection with result of fn applied to its latest
	// value. fn may be called with a value newer than returned by Current.
	Update(ctx context.Context, fn func(prev []story.MediaItem) []story.MediaItem) error
}

// TypeOf returns resource type for media type, empty when it is neither
// image nor video.
func TypeOf(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	major, _, _ := strings.Cut(mt, "/")
	switch major {
	case "image":
		return common.ResourceTypeImage.String()
	case "video":
		return common.ResourceTypeVideo.String()
	}
	return ""
}

// mimeToExt returns file extension for media type.
func mimeToExt(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
