// Package decoder provides the pure-Go image decoder.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers webp with image.Decode

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

// Imaging decodes JPEG, PNG, GIF, BMP, TIFF and lossy WebP through
// disintegration/imaging. EXIF orientation is not applied here.
type Imaging struct{}

// NewImaging returns an initialised decoder.
func NewImaging() *Imaging { return &Imaging{} }

func (d *Imaging) CanDecode(format core.Format) bool {
	switch format {
	case core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatBMP,
		core.FormatTIFF, core.FormatWebP, core.FormatUnknown:
		return true
	}
	return false
}

func (d *Imaging) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "imaging.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "imaging.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "imaging.decode", err)
	}

	format := core.Format(utils.DetectFormat(raw))
	bounds := img.Bounds()
	meta := core.Metadata{
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Format:     format,
		ColorSpace: colorSpace(img),
		HasAlpha:   hasAlpha(img),
		SizeBytes:  int64(len(raw)),
	}

	return &core.ImageData{
		Data:         raw,
		Image:        img,
		Format:       format,
		Meta:         meta,
		OriginalSize: int64(len(raw)),
	}, nil
}

// Probe reads only the image header.
func (d *Imaging) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, "imaging.probe", err)
	}
	cfg, name, err := image.DecodeConfig(r)
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, "imaging.probe", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return core.Metadata{}, apperrors.New(apperrors.CategoryDecode, "imaging.probe",
			fmt.Errorf("%w: %dx%d", apperrors.ErrInvalidDimensions, cfg.Width, cfg.Height))
	}
	return core.Metadata{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: core.FormatFromExtension(name),
	}, nil
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	}
	return false
}

var _ core.Decoder = (*Imaging)(nil)
