// Package params decodes preset tokens such as "w320-h240-c-q60" into a
// core.TransformSpec.
//
// A token is a hyphen-delimited list of fragments. The first byte of each
// fragment is the directive key and the rest is its value:
//
//	w<int>  width
//	h<int>  height
//	c       crop to exactly w x h (takes no value)
//	q<int>  encode quality
//
// Unrecognised keys are kept verbatim in TransformSpec.Extra.
package params

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/Skryldev/variant-cache/config"
	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// Separator splits a token into fragments.
const Separator = "-"

// Defaults seed a spec before the token's fragments are applied.
type Defaults struct {
	Width   *int
	Height  *int
	Crop    bool
	Quality *int
}

// DefaultsFrom converts configured defaults, treating zero as unset.
func DefaultsFrom(d config.DefaultParams) Defaults {
	out := Defaults{Crop: d.Crop}
	if d.Width > 0 {
		out.Width = core.Int(d.Width)
	}
	if d.Height > 0 {
		out.Height = core.Int(d.Height)
	}
	if d.Quality > 0 {
		out.Quality = core.Int(d.Quality)
	}
	return out
}

// CheckPreset fails with a client error when enforce is set and token is
// not exactly one of presets.
func CheckPreset(token string, enforce bool, presets []string) error {
	if !enforce || slices.Contains(presets, token) {
		return nil
	}
	return apperrors.New(apperrors.CategoryClient, "params.preset",
		fmt.Errorf("%w: %q", apperrors.ErrPresetNotAllowed, token))
}

// Decode parses token on top of defaults. When crop is requested with only
// one dimension, the other is mirrored from it.
func Decode(token string, defaults Defaults) (core.TransformSpec, error) {
	spec := core.TransformSpec{
		Width:   defaults.Width,
		Height:  defaults.Height,
		Crop:    defaults.Crop,
		Quality: defaults.Quality,
	}.Clone()

	if token != "" {
		for _, frag := range strings.Split(token, Separator) {
			if frag == "" {
				continue
			}
			key, value := frag[:1], frag[1:]
			switch key {
			case "c":
				spec.Crop = true
			case "w", "h", "q":
				n, err := parsePositive(key, value)
				if err != nil {
					return core.TransformSpec{}, err
				}
				switch key {
				case "w":
					spec.Width = n
				case "h":
					spec.Height = n
				default:
					spec.Quality = n
				}
			default:
				spec.Extra = setExtra(spec.Extra, key, value)
			}
		}
	}

	if spec.Crop {
		if spec.Width == nil && spec.Height != nil {
			spec.Width = core.Int(*spec.Height)
		}
		if spec.Height == nil && spec.Width != nil {
			spec.Height = core.Int(*spec.Width)
		}
	}
	return spec, nil
}

// Clamp bounds width and height independently by the source dimensions.
// It does not preserve the aspect ratio.
func Clamp(spec core.TransformSpec, srcW, srcH int) core.TransformSpec {
	out := spec.Clone()
	if out.Width != nil && *out.Width > srcW {
		out.Width = core.Int(srcW)
	}
	if out.Height != nil && *out.Height > srcH {
		out.Height = core.Int(srcH)
	}
	return out
}

// Effective returns the spec used for pixel work: spec itself when scaleUp is
// allowed, otherwise spec clamped to the source.
func Effective(spec core.TransformSpec, scaleUp bool, srcW, srcH int) core.TransformSpec {
	if scaleUp {
		return spec.Clone()
	}
	return Clamp(spec, srcW, srcH)
}

func parsePositive(key, value string) (*int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return nil, apperrors.New(apperrors.CategoryClient, "params.decode",
			fmt.Errorf("%w: %s%s", apperrors.ErrInvalidParam, key, value))
	}
	return &n, nil
}

// setExtra overwrites an existing key in place so a repeated directive keeps
// its first position.
func setExtra(extra []core.Directive, key, value string) []core.Directive {
	for i := range extra {
		if extra[i].Key == key {
			extra[i].Value = value
			return extra
		}
	}
	return append(extra, core.Directive{Key: key, Value: value})
}
