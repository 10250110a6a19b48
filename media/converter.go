package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/h2non/filetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"wsi/common"
	"wsi/config"
	"wsi/story"
	"wsi/utils/images"
)

// LocalConverter stores imported files in a directory and describes them as
// resources addressed by local references.
type LocalConverter struct {
	cfg *config.MediaConfig
	dir string
	log *zap.Logger
}

func NewLocalConverter(cfg *config.MediaConfig, log *zap.Logger) (*LocalConverter, error) {
	dir, err := filepath.Abs(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve media directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create media directory: %w", err)
	}
	return &LocalConverter{cfg: cfg, dir: dir, log: log.Named("media")}, nil
}

// Dir returns directory converted files are written to.
func (c *LocalConverter) Dir() string {
	return c.dir
}

// Path returns file name for local reference produced by this converter.
func (c *LocalConverter) Path(src string) (string, error) {
	name, ok := strings.CutPrefix(src, Scheme+"://")
	if !ok || name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("not a local media reference: %s", src)
	}
	return filepath.Join(c.dir, name), nil
}

// Discard removes file stored for local reference. Missing file is not an
// error.
func (c *LocalConverter) Discard(src string) error {
	name, err := c.Path(src)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	c.log.Debug("Discarded media file", zap.String("file", name))
	return nil
}

// ResourceFromFile writes file payload into media directory and returns
// resource describing it. Image payload may be optimized on the way.
func (c *LocalConverter) ResourceFromFile(ctx context.Context, f *story.File) (*story.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil || len(f.Data) == 0 {
		return nil, errors.New("empty file")
	}

	mimeType := c.detect(f)
	typ := TypeOf(mimeType)
	if typ == "" {
		return nil, fmt.Errorf("unsupported media type '%s' for %s", mimeType, f.Name)
	}

	base := strings.TrimSuffix(path.Base(f.Name), path.Ext(f.Name))
	res := &story.Resource{Type: typ, MimeType: mimeType, Title: base, Alt: base}

	data := f.Data
	if typ == common.ResourceTypeImage.String() {
		var (
			w, h int
			err  error
		)
		if data, res.MimeType, w, h, err = c.prepareImage(data, mimeType, f.Name); err != nil {
			return nil, err
		}
		res.Width, res.Height = float64(w), float64(h)
	}

	name, err := c.store(data, base, res.MimeType)
	if err != nil {
		return nil, err
	}
	res.Src = Scheme + "://" + name

	c.log.Debug("Stored media file",
		zap.String("file", f.Name), zap.String("src", res.Src), zap.String("type", res.MimeType), zap.Int("size", len(data)))
	return res, nil
}

// detect returns media type for file: declared one, or the one sniffed from
// content when they disagree and verification is requested.
func (c *LocalConverter) detect(f *story.File) string {
	declared := f.MimeType
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	} else {
		declared = mime.TypeByExtension(path.Ext(f.Name))
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mt
		}
	}
	if !c.cfg.VerifyContent {
		return declared
	}

	kind, err := filetype.Match(f.Data)
	if err != nil || kind == filetype.Unknown {
		return declared
	}
	if kind.MIME.Value != declared {
		c.log.Warn("Content does not match declared media type, using detected",
			zap.String("file", f.Name), zap.String("declared", declared), zap.String("detected", kind.MIME.Value))
		return kind.MIME.Value
	}
	return declared
}

func (c *LocalConverter) prepareImage(data []byte, mimeType, name string) ([]byte, string, int, int, error) {
	if mimeType == "image/svg+xml" {
		return c.prepareSVG(data, name)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("unable to decode image %s: %w", name, err)
	}
	if format != "jpeg" && format != "png" {
		return data, mimeType, cfg.Width, cfg.Height, nil
	}
	if !c.cfg.Optimize && !(format == "png" && c.cfg.RemovePNGTransparency) {
		return data, mimeType, cfg.Width, cfg.Height, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("unable to decode image %s: %w", name, err)
	}

	changed, reshaped := false, false
	if c.cfg.Optimize && c.cfg.MaxDimension > 0 {
		b := img.Bounds()
		if w, h := images.Fit(b.Dx(), b.Dy(), c.cfg.MaxDimension); w != b.Dx() || h != b.Dy() {
			c.log.Debug("Downscaling image", zap.String("file", name), zap.Int("width", w), zap.Int("height", h))
			img = imaging.Resize(img, w, h, imaging.Lanczos)
			changed, reshaped = true, true
		}
	}
	if format == "png" && c.cfg.RemovePNGTransparency {
		if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
			c.log.Debug("Removing PNG transparency", zap.String("file", name))
			opaque := image.NewRGBA(img.Bounds())
			draw.Draw(opaque, opaque.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
			draw.Draw(opaque, opaque.Bounds(), img, img.Bounds().Min, draw.Over)
			img = opaque
			changed, reshaped = true, true
		}
	}
	if c.cfg.Optimize {
		switch format {
		case "jpeg":
			q, err := images.JPEGQuality(data)
			if err != nil {
				c.log.Warn("Unable to detect JPEG quality level", zap.String("file", name), zap.Error(err))
			} else if q > c.cfg.JPEGQuality {
				c.log.Debug("JPEG quality level higher than requested, reencoding",
					zap.String("file", name), zap.Int("detected", q), zap.Int("requested", c.cfg.JPEGQuality))
				changed = true
			}
		case "png":
			changed = true
		}
	}
	if !changed {
		return data, mimeType, cfg.Width, cfg.Height, nil
	}

	var out []byte
	switch format {
	case "jpeg":
		if images.IsGrayscale(img) {
			img = images.ToGray(img)
		}
		if out, err = images.EncodeJPEG(img, c.cfg.JPEGQuality); err != nil {
			return nil, "", 0, 0, fmt.Errorf("unable to encode image %s: %w", name, err)
		}
		mimeType = "image/jpeg"
	case "png":
		buf := new(bytes.Buffer)
		if err := imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return nil, "", 0, 0, fmt.Errorf("unable to encode image %s: %w", name, err)
		}
		out = buf.Bytes()
		mimeType = "image/png"
	}
	if !reshaped && len(out) >= len(data) {
		return data, mimeType, cfg.Width, cfg.Height, nil
	}
	return out, mimeType, img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func (c *LocalConverter) prepareSVG(data []byte, name string) ([]byte, string, int, int, error) {
	if !c.cfg.RasterizeSVG {
		w, h, err := images.SVGSize(data)
		if err != nil {
			return nil, "", 0, 0, fmt.Errorf("unable to parse svg %s: %w", name, err)
		}
		return data, "image/svg+xml", w, h, nil
	}

	img, err := images.RasterizeSVG(data, c.cfg.MaxDimension)
	if err != nil {
		return nil, "", 0, 0, fmt.Errorf("unable to rasterize svg %s: %w", name, err)
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, "", 0, 0, fmt.Errorf("unable to encode rasterized svg %s: %w", name, err)
	}
	return buf.Bytes(), "image/png", img.Bounds().Dx(), img.Bounds().Dy(), nil
}

// store writes data under unique name derived from title.
func (c *LocalConverter) store(data []byte, title, mimeType string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("unable to generate media id: %w", err)
	}
	name := id.String()
	if s := slug.Make(title); s != "" {
		name += "-" + s
	}
	name = config.CleanFileName(name + mimeToExt(mimeType))

	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("unable to store media file: %w", err)
	}
	return name, nil
}
