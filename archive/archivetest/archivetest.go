// Package archivetest builds story packages in memory for tests.
package archivetest

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"wsi/archive"
)

type File struct {
	Name    string
	Content []byte
}

// Text is a shortcut for file with textual content.
func Text(name, content string) File {
	return File{Name: name, Content: []byte(content)}
}

// Zip returns zip container with files in the given order.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	for _, f := range files {
		fw, err := w.Create(f.Name)
		if err != nil {
			t.Fatalf("Failed to create file %s in zip: %v", f.Name, err)
		}
		if _, err := fw.Write(f.Content); err != nil {
			t.Fatalf("Failed to write content for %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// Source wraps container bytes as import source declared as zip.
func Source(data []byte) archive.Source {
	return archive.Source{Name: "story.zip", Type: "application/zip", Size: int64(len(data)), R: bytes.NewReader(data)}
}

// Open builds container and opens it.
func Open(t testing.TB, files ...File) *archive.Archive {
	t.Helper()

	arc, err := archive.Open(Source(Zip(t, files...)), archive.Options{})
	if err != nil {
		t.Fatalf("Failed to open test archive: %v", err)
	}
	return arc
}

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 128, A: 255})
		}
	}
	return img
}

// JPEG returns valid JPEG image of requested size.
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, testImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("Failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// PNG returns valid PNG image of requested size.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, testImage(w, h)); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}
