package vips

import (
	"context"
	"fmt"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

func (b *Backend) Rotate(degrees int) core.Step { return &VipsRotateStep{Degrees: degrees} }
func (b *Backend) Cover(width, height int) core.Step {
	return &VipsCoverStep{Width: width, Height: height}
}
func (b *Backend) Fit(width, height int) core.Step { return &VipsFitStep{Width: width, Height: height} }

func vipsImage(name string, img *core.ImageData) (*VipsImage, error) {
	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, name,
			fmt.Errorf("expected *VipsImage; use vips backend for decode"))
	}
	return vi, nil
}

// ─── VipsRotateStep ───────────────────────────────────────────────────────────

// VipsRotateStep turns the image clockwise. The EXIF orientation tag is left
// in place; the strip step removes it after saving.
type VipsRotateStep struct {
	Degrees int
}

func (s *VipsRotateStep) Name() string { return "vips.rotate" }

func (s *VipsRotateStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	vi, err := vipsImage(s.Name(), img)
	if err != nil {
		return nil, err
	}

	var angle govips.Angle
	switch s.Degrees {
	case 180, -180:
		angle = govips.Angle180
	case 90, -270:
		angle = govips.Angle90
	case -90, 270:
		angle = govips.Angle270
	default:
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(),
			fmt.Errorf("unsupported rotation %d", s.Degrees))
	}
	if err := vi.ref.Rotate(angle); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	out := *img
	out.Meta.Width = vi.ref.Width()
	out.Meta.Height = vi.ref.Height()
	out.Meta.Rotated = true
	return &out, nil
}

// ─── VipsCoverStep ────────────────────────────────────────────────────────────

// VipsCoverStep uses vips_thumbnail with a centre crop, which fills the box
// and trims the overflow.
type VipsCoverStep struct {
	Width, Height int
}

func (s *VipsCoverStep) Name() string { return "vips.cover" }

func (s *VipsCoverStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	vi, err := vipsImage(s.Name(), img)
	if err != nil {
		return nil, err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, s.Name(), apperrors.ErrInvalidDimensions)
	}
	if err := vi.ref.ThumbnailWithSize(s.Width, s.Height, govips.InterestingCentre, govips.SizeBoth); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	out := *img
	out.Meta.Width = vi.ref.Width()
	out.Meta.Height = vi.ref.Height()
	return &out, nil
}

// ─── VipsFitStep ──────────────────────────────────────────────────────────────

// VipsFitStep resizes with the Lanczos3 kernel to fit within the bounds.
type VipsFitStep struct {
	Width, Height int
}

func (s *VipsFitStep) Name() string { return "vips.fit" }

func (s *VipsFitStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	vi, err := vipsImage(s.Name(), img)
	if err != nil {
		return nil, err
	}
	srcW, srcH := vi.ref.Width(), vi.ref.Height()
	dstW, dstH := utils.FitDimensions(srcW, srcH, s.Width, s.Height)
	if dstW == srcW && dstH == srcH {
		return img, nil
	}
	hs := float64(dstW) / float64(srcW)
	vs := float64(dstH) / float64(srcH)
	if err := vi.ref.ResizeWithVScale(hs, vs, govips.KernelLanczos3); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	out := *img
	out.Meta.Width = vi.ref.Width()
	out.Meta.Height = vi.ref.Height()
	return &out, nil
}

var (
	_ core.Step = (*VipsRotateStep)(nil)
	_ core.Step = (*VipsCoverStep)(nil)
	_ core.Step = (*VipsFitStep)(nil)
)
