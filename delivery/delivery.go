// Package delivery writes a file to an HTTP response with freshness headers
// and If-Modified-Since handling.
package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

// DefaultChunkSize is the streaming chunk size when Options leaves it unset.
const DefaultChunkSize = 8 * 1024

// Options tune a delivery.
type Options struct {
	// TTL drives Expires and Cache-Control max-age.
	TTL       time.Duration
	ChunkSize int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes what Deliver wrote.
type Result struct {
	Status      int
	Bytes       int64
	ContentType string
}

// Deliver answers r with the file at path. It always completes the response:
// callers must not write to w afterwards.
//
// An If-Modified-Since header that matches Last-Modified byte for byte gets a
// bodyless 304. Otherwise the file is streamed in ChunkSize pieces, flushing
// after each. Errors after the headers are sent are recovered, since the
// client has already seen a status.
func Deliver(w http.ResponseWriter, r *http.Request, path string, opts Options) (Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CategoryDelivery, "delivery.open", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CategoryDelivery, "delivery.stat", err)
	}

	lastModified := fi.ModTime().UTC().Format(http.TimeFormat)
	h := w.Header()
	h.Set("Connection", "close")

	if ims := r.Header.Get("If-Modified-Since"); ims != "" && ims == lastModified {
		w.WriteHeader(http.StatusNotModified)
		return Result{Status: http.StatusNotModified}, nil
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CategoryDelivery, "delivery.sniff", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Result{}, apperrors.Wrap(apperrors.CategoryDelivery, "delivery.seek", err)
	}

	ttl := opts.TTL
	h.Set("Last-Modified", lastModified)
	h.Set("Content-Type", mtype.String())
	h.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	h.Set("Expires", now().Add(ttl).UTC().Format(http.TimeFormat))
	h.Set("Cache-Control", fmt.Sprintf("max-age=%d, public", int64(ttl/time.Second)))
	w.WriteHeader(http.StatusOK)

	res := Result{Status: http.StatusOK, ContentType: mtype.String()}
	if r.Method == http.MethodHead {
		return res, nil
	}

	rc := http.NewResponseController(w)
	cw := &utils.ChunkedWriter{
		W:         w,
		ChunkSize: chunk,
		Flush: func() error {
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
			return nil
		},
	}
	buf := make([]byte, chunk)
	n, err := io.CopyBuffer(cw, onlyReader{f}, buf)
	res.Bytes = n
	if err != nil {
		return res, apperrors.Recovered(apperrors.CategoryDelivery, "delivery.stream", err)
	}
	return res, nil
}

// onlyReader hides WriterTo so CopyBuffer reads in chunk-sized pieces.
type onlyReader struct{ r io.Reader }

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
