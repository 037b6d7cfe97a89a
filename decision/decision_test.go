package decision_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/core"
	"github.com/Skryldev/variant-cache/decision"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

type fakeOrientation struct {
	value int
	err   error
	calls int
}

func (f *fakeOrientation) Orientation(context.Context, string) (int, error) {
	f.calls++
	return f.value, f.err
}

var src = core.SourceAsset{Path: "/img/photo.jpg", Width: 800, Height: 600}

func spec(w, h *int) core.TransformSpec { return core.TransformSpec{Width: w, Height: h} }

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		exists      bool
		orientation int
		sameDims    bool
		requested   core.TransformSpec
		want        decision.Outcome
	}{
		{"cached file wins", true, 6, false, spec(core.Int(10), nil), decision.ServeCachedExisting},
		{"no dimensions serves source", false, 1, false, spec(nil, nil), decision.ServeSource},
		{"no dimensions with large source", false, 0, true, spec(nil, nil), decision.ServeSource},
		{"orientation 3 generates", false, 3, false, spec(nil, nil), decision.GenerateThenServeCached},
		{"orientation 6 generates", false, 6, true, spec(core.Int(800), core.Int(600)), decision.GenerateThenServeCached},
		{"orientation 8 generates", false, 8, false, spec(nil, nil), decision.GenerateThenServeCached},
		{"mirrored orientation ignored", false, 2, false, spec(nil, nil), decision.ServeSource},
		{"same dimensions policy off", false, 1, false, spec(core.Int(800), core.Int(600)), decision.GenerateThenServeCached},
		{"same dimensions policy on", false, 1, true, spec(core.Int(800), core.Int(600)), decision.ServeSource},
		{"width only generates", false, 1, true, spec(core.Int(800), nil), decision.GenerateThenServeCached},
		{"smaller size generates", false, 1, true, spec(core.Int(320), core.Int(240)), decision.GenerateThenServeCached},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reader := &fakeOrientation{value: tc.orientation}
			e := decision.Engine{
				Policy:      decision.Policy{ServeSourceOnSameDimensions: tc.sameDims},
				Orientation: reader,
			}
			got, err := e.Decide(context.Background(), src, core.CacheEntry{Exists: tc.exists}, tc.requested)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "got %s", got)
		})
	}
}

func TestDecide_ExistingSkipsExif(t *testing.T) {
	reader := &fakeOrientation{value: 6}
	e := decision.Engine{Orientation: reader}
	got, err := e.Decide(context.Background(), src, core.CacheEntry{Exists: true}, spec(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, decision.ServeCachedExisting, got)
	assert.Zero(t, reader.calls)
}

func TestDecide_ExifFailureIsIgnored(t *testing.T) {
	reader := &fakeOrientation{err: apperrors.Recovered(apperrors.CategoryDecode, "exif", errors.New("no exif"))}
	e := decision.Engine{Orientation: reader, Logger: core.NopLogger{}}

	got, err := e.Decide(context.Background(), src, core.CacheEntry{}, spec(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, decision.ServeSource, got)

	got, err = e.Decide(context.Background(), src, core.CacheEntry{}, spec(core.Int(100), nil))
	require.NoError(t, err)
	assert.Equal(t, decision.GenerateThenServeCached, got)
}

func TestDecide_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&decision.Engine{}).Decide(ctx, src, core.CacheEntry{}, spec(nil, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "serve_source", decision.ServeSource.String())
	assert.Equal(t, "serve_cached", decision.ServeCachedExisting.String())
	assert.Equal(t, "generate", decision.GenerateThenServeCached.String())
}
