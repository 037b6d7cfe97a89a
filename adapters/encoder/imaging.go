// Package encoder provides the pure-Go image encoder.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// Imaging encodes through disintegration/imaging. The output never carries
// the source's EXIF or other metadata. imaging has no WebP encoder, so WebP
// targets are written as PNG, which keeps alpha and loses nothing.
type Imaging struct {
	DefaultQuality int // used when EncodeOptions.Quality == 0
}

func NewImaging(defaultQuality int) *Imaging {
	if defaultQuality <= 0 {
		defaultQuality = 85
	}
	return &Imaging{DefaultQuality: defaultQuality}
}

func (e *Imaging) CanEncode(format core.Format) bool {
	_, ok := imagingFormat(format)
	return ok
}

func (e *Imaging) StripsMetadata() bool { return true }

func (e *Imaging) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "imaging.encode", err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "imaging.encode", apperrors.ErrEmptyInput)
	}
	f, ok := imagingFormat(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, "imaging.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = e.DefaultQuality
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, f, imaging.JPEGQuality(quality)); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "imaging.encode", err)
	}
	return buf.Bytes(), nil
}

func imagingFormat(f core.Format) (imaging.Format, bool) {
	switch f {
	case core.FormatJPEG:
		return imaging.JPEG, true
	case core.FormatPNG:
		return imaging.PNG, true
	case core.FormatGIF:
		return imaging.GIF, true
	case core.FormatBMP:
		return imaging.BMP, true
	case core.FormatTIFF:
		return imaging.TIFF, true
	case core.FormatWebP:
		return imaging.PNG, true
	}
	return 0, false
}

// Register installs d and e for every format they handle.
func Register(reg core.Registry, d core.Decoder, e *Imaging) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatBMP, core.FormatTIFF, core.FormatWebP} {
		if d.CanDecode(f) {
			reg.RegisterDecoder(f, d)
		}
		if e.CanEncode(f) {
			reg.RegisterEncoder(f, e)
		}
	}
}

var _ core.Encoder = (*Imaging)(nil)
