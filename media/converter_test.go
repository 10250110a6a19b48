package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"wsi/archive/archivetest"
	"wsi/config"
	"wsi/story"
	"wsi/utils/images"
)

func newConverter(t *testing.T, mutate func(*config.MediaConfig)) *LocalConverter {
	t.Helper()

	cfg := &config.MediaConfig{Directory: t.TempDir(), JPEGQuality: 75, VerifyContent: true}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewLocalConverter(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocalConverter() error = %v", err)
	}
	return c
}

func readStored(t *testing.T, c *LocalConverter, src string) []byte {
	t.Helper()

	p, err := c.Path(src)
	if err != nil {
		t.Fatalf("Path(%q) error = %v", src, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("stored file is missing: %v", err)
	}
	return data
}

func TestResourceFromFile(t *testing.T) {
	c := newConverter(t, nil)
	jpg := archivetest.JPEG(t, 32, 16)

	res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "media/Cat Photo.jpg", MimeType: "image/jpeg", Data: jpg})
	if err != nil {
		t.Fatalf("ResourceFromFile() error = %v", err)
	}
	if !strings.HasPrefix(res.Src, Scheme+"://") || !strings.HasSuffix(res.Src, "-cat-photo.jpg") {
		t.Errorf("unexpected src %q", res.Src)
	}
	if res.Type != "image" || res.MimeType != "image/jpeg" {
		t.Errorf("unexpected type %q / %q", res.Type, res.MimeType)
	}
	if res.Width != 32 || res.Height != 16 {
		t.Errorf("unexpected size %vx%v", res.Width, res.Height)
	}
	if res.Title != "Cat Photo" || res.Alt != "Cat Photo" {
		t.Errorf("unexpected title/alt %q / %q", res.Title, res.Alt)
	}
	if !bytes.Equal(readStored(t, c, res.Src), jpg) {
		t.Error("stored content differs from original")
	}

	again, err := c.ResourceFromFile(context.Background(), &story.File{Name: "media/Cat Photo.jpg", MimeType: "image/jpeg", Data: jpg})
	if err != nil {
		t.Fatal(err)
	}
	if again.Src == res.Src {
		t.Error("same file converted twice must get distinct references")
	}
}

func TestResourceFromFileVideo(t *testing.T) {
	c := newConverter(t, nil)
	// ftyp box is enough for content sniffing
	mp4 := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)

	res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "clip.mp4", MimeType: "video/mp4", Data: mp4})
	if err != nil {
		t.Fatalf("ResourceFromFile() error = %v", err)
	}
	if res.Type != "video" || res.MimeType != "video/mp4" || !strings.HasSuffix(res.Src, "-clip.mp4") {
		t.Errorf("unexpected resource %+v", res)
	}
}

func TestResourceFromFileErrors(t *testing.T) {
	c := newConverter(t, nil)
	tests := []struct {
		name string
		file *story.File
	}{
		{"nil", nil},
		{"empty", &story.File{Name: "a.jpg", MimeType: "image/jpeg"}},
		{"not media", &story.File{Name: "a.txt", MimeType: "text/plain", Data: []byte("hello")}},
		{"broken image", &story.File{Name: "a.jpg", MimeType: "image/jpeg", Data: []byte("definitely not a jpeg")}},
		{"content is zip", &story.File{Name: "a.jpg", MimeType: "image/jpeg", Data: archivetest.Zip(t, archivetest.Text("x", "y"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.ResourceFromFile(context.Background(), tt.file); err == nil {
				t.Error("expected error")
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ResourceFromFile(ctx, &story.File{Name: "a.jpg", MimeType: "image/jpeg", Data: archivetest.JPEG(t, 4, 4)}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestDetect(t *testing.T) {
	pngData := archivetest.PNG(t, 4, 4)
	tests := []struct {
		name   string
		verify bool
		file   story.File
		want   string
	}{
		{"declared", true, story.File{Name: "a.png", MimeType: "image/png", Data: pngData}, "image/png"},
		{"mismatch verified", true, story.File{Name: "a.jpg", MimeType: "image/jpeg", Data: pngData}, "image/png"},
		{"mismatch trusted", false, story.File{Name: "a.jpg", MimeType: "image/jpeg", Data: pngData}, "image/jpeg"},
		{"from extension", true, story.File{Name: "a.svg", Data: []byte("<svg/>")}, "image/svg+xml"},
		{"parameters dropped", true, story.File{Name: "a", MimeType: "image/png; foo=bar", Data: pngData}, "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newConverter(t, func(cfg *config.MediaConfig) { cfg.VerifyContent = tt.verify })
			if got := c.detect(&tt.file); got != tt.want {
				t.Errorf("detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptimize(t *testing.T) {
	t.Run("downscale jpeg", func(t *testing.T) {
		c := newConverter(t, func(cfg *config.MediaConfig) {
			cfg.Optimize = true
			cfg.MaxDimension = 20
		})
		res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "big.jpg", MimeType: "image/jpeg", Data: archivetest.JPEG(t, 80, 40)})
		if err != nil {
			t.Fatalf("ResourceFromFile() error = %v", err)
		}
		if res.Width != 20 || res.Height != 10 {
			t.Errorf("size after downscale %vx%v, want 20x10", res.Width, res.Height)
		}
		data := readStored(t, c, res.Src)
		if data[2] != 0xFF || data[3] != 0xE0 {
			t.Error("reencoded jpeg has no JFIF segment")
		}
		if q, err := images.JPEGQuality(data); err != nil || q > 77 {
			t.Errorf("reencoded quality %d (%v)", q, err)
		}
	})

	t.Run("remove png transparency", func(t *testing.T) {
		c := newConverter(t, func(cfg *config.MediaConfig) { cfg.RemovePNGTransparency = true })

		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		img.Set(1, 1, color.NRGBA{R: 255, A: 255})
		buf := new(bytes.Buffer)
		if err := png.Encode(buf, img); err != nil {
			t.Fatal(err)
		}

		res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "t.png", MimeType: "image/png", Data: buf.Bytes()})
		if err != nil {
			t.Fatalf("ResourceFromFile() error = %v", err)
		}
		out, err := png.Decode(bytes.NewReader(readStored(t, c, res.Src)))
		if err != nil {
			t.Fatal(err)
		}
		if _, _, _, a := out.At(0, 0).RGBA(); a != 0xffff {
			t.Errorf("pixel alpha = %x, want opaque", a)
		}
	})

	t.Run("svg", func(t *testing.T) {
		svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50"><rect width="100" height="50"/></svg>`)

		c := newConverter(t, nil)
		res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "shape.svg", MimeType: "image/svg+xml", Data: svg})
		if err != nil {
			t.Fatalf("ResourceFromFile() error = %v", err)
		}
		if res.MimeType != "image/svg+xml" || res.Width != 100 || res.Height != 50 {
			t.Errorf("unexpected svg resource %+v", res)
		}

		c = newConverter(t, func(cfg *config.MediaConfig) { cfg.RasterizeSVG = true; cfg.MaxDimension = 50 })
		res, err = c.ResourceFromFile(context.Background(), &story.File{Name: "shape.svg", MimeType: "image/svg+xml", Data: svg})
		if err != nil {
			t.Fatalf("ResourceFromFile() error = %v", err)
		}
		if res.MimeType != "image/png" || res.Width != 50 || res.Height != 25 || !strings.HasSuffix(res.Src, ".png") {
			t.Errorf("unexpected rasterized resource %+v", res)
		}
	})
}

func TestPath(t *testing.T) {
	c := newConverter(t, nil)
	for _, src := range []string{"a.jpg", Scheme + "://", Scheme + "://../x.jpg", Scheme + "://a/b.jpg", "file:///etc/passwd"} {
		if _, err := c.Path(src); err == nil {
			t.Errorf("Path(%q) expected error", src)
		}
	}
}

func TestDiscard(t *testing.T) {
	c := newConverter(t, nil)
	res, err := c.ResourceFromFile(context.Background(), &story.File{Name: "clip.mp4", MimeType: "video/mp4", Data: []byte("not a video")})
	if err != nil {
		t.Fatalf("ResourceFromFile() error = %v", err)
	}
	name, err := c.Path(res.Src)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Discard(res.Src); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if _, err := os.Stat(name); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file still exists after Discard(): %v", err)
	}
	if err := c.Discard(res.Src); err != nil {
		t.Errorf("Discard() of missing file error = %v", err)
	}
	if err := c.Discard("a.jpg"); err == nil {
		t.Error("Discard() of foreign reference must fail")
	}
	var _ Discarder = c
}

func TestTypeOf(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "image",
		"video/mp4; codecs=avc1":   "video",
		"application/octet-stream": "",
		"":                         "",
	}
	for in, want := range tests {
		if got := TypeOf(in); got != want {
			t.Errorf("TypeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMemoryLibrary(t *testing.T) {
	lib := NewMemoryLibrary(story.MediaItem{ID: 1, Title: "a"})
	ctx := context.Background()

	items, _ := lib.Current(ctx)
	items[0].Title = "changed"
	if cur, _ := lib.Current(ctx); cur[0].Title != "a" {
		t.Error("Current() must return a copy")
	}

	err := lib.Update(ctx, func(prev []story.MediaItem) []story.MediaItem {
		return append(prev, story.MediaItem{ID: 2, Title: "b"})
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cur, _ := lib.Current(ctx); len(cur) != 2 || cur[1].Title != "b" {
		t.Errorf("unexpected library content %+v", cur)
	}
}
