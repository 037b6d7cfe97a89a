// Package pipeline provides the built-in transform steps and the Plan
// builder that orders them for one variant.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep turns the raw bytes into a pixel buffer with the decoder the
// registry holds for img.Format.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	dec, ok := s.Registry.DecoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}
	out, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, err
	}
	if out.OriginalSize == 0 {
		out.OriginalSize = img.OriginalSize
	}
	return out, nil
}

// ── Pure-Go geometry ──────────────────────────────────────────────────────────

// Std builds geometric steps over image.Image values.
type Std struct{}

func (Std) Rotate(degrees int) core.Step { return &RotateStep{Degrees: degrees} }
func (Std) Cover(width, height int) core.Step { return &CoverStep{Width: width, Height: height} }
func (Std) Fit(width, height int) core.Step { return &FitStep{Width: width, Height: height} }

// RotateStep turns the image clockwise by 180, 90 or -90 degrees.
type RotateStep struct {
	Degrees int
}

func (s *RotateStep) Name() string { return "rotate" }

func (s *RotateStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	// imaging rotates counter-clockwise.
	var dst *image.NRGBA
	switch s.Degrees {
	case 180, -180:
		dst = imaging.Rotate180(src)
	case 90, -270:
		dst = imaging.Rotate270(src)
	case -90, 270:
		dst = imaging.Rotate90(src)
	default:
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("unsupported rotation %d", s.Degrees))
	}

	out := *img
	out.Image = dst
	out.Meta.Width = dst.Bounds().Dx()
	out.Meta.Height = dst.Bounds().Dy()
	out.Meta.Rotated = true
	return &out, nil
}

// CoverStep resizes until the image covers Width x Height, then crops the
// overflow centred. The result is exactly Width x Height.
type CoverStep struct {
	Width, Height int
}

func (s *CoverStep) Name() string { return "cover" }

func (s *CoverStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimensions)
	}

	b := src.Bounds()
	if b.Dx() == s.Width && b.Dy() == s.Height {
		return img, nil
	}
	dst := imaging.Fill(src, s.Width, s.Height, imaging.Center, imaging.Lanczos)

	out := *img
	out.Image = dst
	out.Meta.Width = s.Width
	out.Meta.Height = s.Height
	return &out, nil
}

// FitStep resizes so the image fits within Width x Height, keeping the
// aspect ratio. A zero bound leaves that axis free.
type FitStep struct {
	Width, Height int
	// Resampler controls quality vs speed.  Defaults to draw.CatmullRom.
	Resampler xdraw.Interpolator
}

func (s *FitStep) Name() string { return "fit" }

func (s *FitStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrEmptyInput)
	}

	srcB := src.Bounds()
	dstW, dstH := utils.FitDimensions(srcB.Dx(), srcB.Dy(), s.Width, s.Height)
	if dstW == srcB.Dx() && dstH == srcB.Dy() {
		return img, nil
	}

	sampler := s.Resampler
	if sampler == nil {
		sampler = xdraw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	sampler.Scale(dst, dst.Bounds(), src, srcB, xdraw.Src, nil)

	out := *img
	out.Image = dst
	out.Meta.Width = dstW
	out.Meta.Height = dstH
	return &out, nil
}

// ── Format conversion ─────────────────────────────────────────────────────────

// FormatStep sets the output format for the subsequent encode step.
type FormatStep struct {
	Format core.Format
}

func (s *FormatStep) Name() string { return "format" }

func (s *FormatStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	out := *img
	out.Format = s.Format
	out.Meta.Format = s.Format
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the pixel buffer with the registry's encoder for
// img.Format.
type EncodeStep struct {
	Registry core.Registry
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, err
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// ── Persist ───────────────────────────────────────────────────────────────────

// WriteStep stores the encoded bytes under Key.
type WriteStep struct {
	Storage core.StorageAdapter
	Key     core.StorageKey
}

func (s *WriteStep) Name() string { return "write" }

func (s *WriteStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryStorage, s.Name(), apperrors.ErrEmptyInput)
	}
	if err := s.Storage.Put(ctx, s.Key, bytes.NewReader(img.Data)); err != nil {
		return nil, err
	}
	return img, nil
}

// StripMetadataStep removes metadata from the written file. Failures are
// logged and swallowed.
type StripMetadataStep struct {
	Stripper core.MetadataStripper
	Path     string
	Logger   core.Logger
}

func (s *StripMetadataStep) Name() string { return "strip_metadata" }

func (s *StripMetadataStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if !img.Meta.Rotated || s.Stripper == nil {
		return img, nil
	}
	if err := s.Stripper.StripFile(ctx, s.Path); err != nil && s.Logger != nil {
		err = apperrors.Recovered(apperrors.CategoryPipeline, s.Name(), err)
		s.Logger.Warn("metadata strip failed", "path", s.Path, "error", err)
	}
	return img, nil
}
