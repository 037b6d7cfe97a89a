package exif_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/adapters/exif"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/internal/imagetest"
)

func TestOrientation(t *testing.T) {
	dir := t.TempDir()
	r := exif.NewReader()

	for _, o := range []uint16{1, 3, 6, 8} {
		p := imagetest.WriteFile(t, dir, "o.jpg", imagetest.JPEGWithOrientation(t, 8, 4, o))
		got, err := r.Orientation(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, int(o), got)
	}
}

func TestOrientation_FailuresAreRecovered(t *testing.T) {
	dir := t.TempDir()
	r := exif.NewReader()

	noExif := imagetest.WriteFile(t, dir, "plain.png", imagetest.PNG(t, 4, 4))
	_, err := r.Orientation(context.Background(), noExif)
	require.Error(t, err)
	assert.True(t, apperrors.IsRecovered(err))

	_, err = r.Orientation(context.Background(), filepath.Join(dir, "missing.jpg"))
	require.Error(t, err)
	assert.True(t, apperrors.IsRecovered(err))
}
