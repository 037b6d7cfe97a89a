// Package exif reads EXIF orientation with rwcarlsen/goexif.
package exif

import (
	"context"
	"os"

	goexif "github.com/rwcarlsen/goexif/exif"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// Reader implements core.OrientationReader. Every failure it returns is a
// recovered error: missing or malformed EXIF is normal.
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

func (r *Reader) Orientation(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, apperrors.Recovered(apperrors.CategoryDecode, "exif.open", err)
	}
	defer f.Close()

	x, err := goexif.Decode(f)
	if err != nil {
		return 0, apperrors.Recovered(apperrors.CategoryDecode, "exif.decode", err)
	}
	tag, err := x.Get(goexif.Orientation)
	if err != nil {
		return 0, apperrors.Recovered(apperrors.CategoryDecode, "exif.orientation", err)
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, apperrors.Recovered(apperrors.CategoryDecode, "exif.orientation", err)
	}
	return v, nil
}

var _ core.OrientationReader = (*Reader)(nil)
