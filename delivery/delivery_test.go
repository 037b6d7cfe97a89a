package delivery_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/variant-cache/delivery"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/internal/imagetest"
)

var (
	mtime = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	now   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func writeFixture(t *testing.T, data []byte) string {
	t.Helper()
	p := imagetest.WriteFile(t, t.TempDir(), "photo.png", data)
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func opts() delivery.Options {
	return delivery.Options{TTL: 7 * 24 * time.Hour, ChunkSize: 1024, Now: func() time.Time { return now }}
}

func TestDeliver_Headers(t *testing.T) {
	data := imagetest.PNG(t, 64, 64)
	p := writeFixture(t, data)

	rec := httptest.NewRecorder()
	res, err := delivery.Deliver(rec, httptest.NewRequest(http.MethodGet, "/x", nil), p, opts())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, data, rec.Body.Bytes())

	h := rec.Header()
	assert.Equal(t, "Fri, 01 Mar 2024 12:30:00 GMT", h.Get("Last-Modified"))
	assert.Equal(t, "image/png", h.Get("Content-Type"))
	assert.Equal(t, "image/png", res.ContentType)
	assert.Equal(t, "Sat, 08 Jun 2024 00:00:00 GMT", h.Get("Expires"))
	assert.Equal(t, "max-age=604800, public", h.Get("Cache-Control"))
	assert.Equal(t, "close", h.Get("Connection"))
	assert.Equal(t, strconv.Itoa(len(data)), h.Get("Content-Length"))
	assert.True(t, rec.Flushed)
}

func TestDeliver_ContentLength(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 5000)
	p := writeFixture(t, data)

	rec := httptest.NewRecorder()
	_, err := delivery.Deliver(rec, httptest.NewRequest(http.MethodGet, "/x", nil), p, opts())
	require.NoError(t, err)
	assert.Equal(t, "5000", rec.Header().Get("Content-Length"))
	assert.Equal(t, 5000, rec.Body.Len())
}

func TestDeliver_NotModified(t *testing.T) {
	p := writeFixture(t, imagetest.PNG(t, 8, 8))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("If-Modified-Since", "Fri, 01 Mar 2024 12:30:00 GMT")
	rec := httptest.NewRecorder()
	res, err := delivery.Deliver(rec, req, p, opts())
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, http.StatusNotModified, res.Status)
	assert.Zero(t, rec.Body.Len())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestDeliver_IfModifiedSinceMustMatchExactly(t *testing.T) {
	p := writeFixture(t, imagetest.PNG(t, 8, 8))

	// A later date would satisfy RFC semantics, but only an exact match counts.
	for _, ims := range []string{"Sat, 02 Mar 2024 12:30:00 GMT", "fri, 01 mar 2024 12:30:00 gmt"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("If-Modified-Since", ims)
		rec := httptest.NewRecorder()
		_, err := delivery.Deliver(rec, req, p, opts())
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code, ims)
	}
}

func TestDeliver_Head(t *testing.T) {
	p := writeFixture(t, imagetest.PNG(t, 8, 8))
	rec := httptest.NewRecorder()
	_, err := delivery.Deliver(rec, httptest.NewRequest(http.MethodHead, "/x", nil), p, opts())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, rec.Body.Len())
	assert.NotEmpty(t, rec.Header().Get("Content-Length"))
}

func TestDeliver_MissingFile(t *testing.T) {
	rec := httptest.NewRecorder()
	_, err := delivery.Deliver(rec, httptest.NewRequest(http.MethodGet, "/x", nil), filepath.Join(t.TempDir(), "nope"), opts())
	require.Error(t, err)
	assert.False(t, apperrors.IsRecovered(err))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
}

type chunkRecorder struct {
	*httptest.ResponseRecorder
	writes []int
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.writes = append(c.writes, len(p))
	return c.ResponseRecorder.Write(p)
}

func TestDeliver_StreamsInChunks(t *testing.T) {
	p := writeFixture(t, bytes.Repeat([]byte("z"), 2500))
	rec := &chunkRecorder{ResponseRecorder: httptest.NewRecorder()}

	_, err := delivery.Deliver(rec, httptest.NewRequest(http.MethodGet, "/x", nil), p, opts())
	require.NoError(t, err)
	assert.Equal(t, []int{1024, 1024, 452}, rec.writes)
}
