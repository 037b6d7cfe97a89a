package utils_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/utils"
)

func TestFitDimensions(t *testing.T) {
	cases := []struct {
		name               string
		srcW, srcH, tw, th int
		wantW, wantH       int
	}{
		{"width bound", 800, 600, 400, 0, 400, 300},
		{"height bound", 800, 600, 0, 300, 400, 300},
		{"both, width tighter", 800, 600, 200, 600, 200, 150},
		{"unconstrained", 800, 600, 0, 0, 800, 600},
		{"upscale", 100, 50, 200, 0, 200, 100},
		{"never zero", 1000, 1, 10, 0, 10, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := utils.FitDimensions(tc.srcW, tc.srcH, tc.tw, tc.th)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "jpeg", utils.DetectFormat([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "gif", utils.DetectFormat([]byte("GIF89a")))
	assert.Equal(t, "webp", utils.DetectFormat([]byte("RIFF\x00\x00\x00\x00WEBPVP8 ")))
	assert.Equal(t, "unknown", utils.DetectFormat([]byte("hi")))
}

func TestDrainReader_LimitedReader(t *testing.T) {
	buf, err := utils.DrainReader(context.Background(), strings.NewReader("hello world"), 3)
	require.NoError(t, err)
	assert.Equal(t, "hello world", buf.String())
	utils.ReleaseBuffer(buf)

	_, err = utils.DrainReader(context.Background(), &utils.LimitedReader{R: strings.NewReader("hello world"), Max: 5}, 3)
	assert.ErrorIs(t, err, utils.ErrTooLarge)

	buf, err = utils.DrainReader(context.Background(), &utils.LimitedReader{R: strings.NewReader("hello"), Max: 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, "hello", buf.String())
}

func TestChunkedWriter(t *testing.T) {
	var out bytes.Buffer
	flushes := 0
	w := &utils.ChunkedWriter{W: &out, ChunkSize: 4, Flush: func() error { flushes++; return nil }}

	n, err := w.Write([]byte("abcdefghij"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "abcdefghij", out.String())
	assert.Equal(t, 3, flushes)
}
