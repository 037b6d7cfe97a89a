package core_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skryldev/variant-cache/core"
)

type onlyDecoder struct{ formats []core.Format }

func (d onlyDecoder) Decode(context.Context, io.Reader) (*core.ImageData, error) { return nil, nil }
func (d onlyDecoder) Probe(context.Context, io.Reader) (core.Metadata, error)    { return core.Metadata{}, nil }
func (d onlyDecoder) CanDecode(f core.Format) bool {
	for _, ff := range d.formats {
		if ff == f {
			return true
		}
	}
	return false
}

func TestRegistry_DecoderFallback(t *testing.T) {
	r := core.NewRegistry()
	pngOnly := onlyDecoder{formats: []core.Format{core.FormatPNG}}
	sniffing := onlyDecoder{formats: []core.Format{core.FormatJPEG, core.FormatUnknown}}
	r.RegisterDecoder(core.FormatPNG, pngOnly)
	r.RegisterDecoder(core.FormatJPEG, sniffing)

	d, ok := r.DecoderFor(core.FormatPNG)
	assert.True(t, ok)
	assert.Equal(t, pngOnly, d)

	d, ok = r.DecoderFor(core.FormatUnknown)
	assert.True(t, ok)
	assert.Equal(t, sniffing, d)

	_, ok = r.DecoderFor(core.FormatTIFF)
	assert.False(t, ok)

	_, ok = r.EncoderFor(core.FormatPNG)
	assert.False(t, ok)
}

func TestRotationFor(t *testing.T) {
	cases := map[int]int{3: 180, 6: 90, 8: -90}
	for o, want := range cases {
		got, ok := core.RotationFor(o)
		assert.True(t, ok, o)
		assert.Equal(t, want, got, o)
		assert.True(t, core.NeedsRotation(o))
	}
	for _, o := range []int{0, 1, 2, 4, 5, 7, 9} {
		assert.False(t, core.NeedsRotation(o), o)
	}
}

func TestFormatFromExtension(t *testing.T) {
	assert.Equal(t, core.FormatJPEG, core.FormatFromExtension(".JPG"))
	assert.Equal(t, core.FormatJPEG, core.FormatFromExtension("jpe"))
	assert.Equal(t, core.FormatTIFF, core.FormatFromExtension("tif"))
	assert.Equal(t, core.FormatUnknown, core.FormatFromExtension("svg"))
}

func TestTransformSpec_Clone(t *testing.T) {
	s := core.TransformSpec{Width: core.Int(10), Extra: []core.Directive{{Key: "x", Value: "1"}}}
	c := s.Clone()
	*c.Width = 20
	c.Extra[0].Value = "2"
	assert.Equal(t, 10, *s.Width)
	assert.Equal(t, "1", s.Extra[0].Value)
	assert.True(t, c.HasDimensions())
	assert.False(t, core.TransformSpec{Crop: true}.HasDimensions())
}
