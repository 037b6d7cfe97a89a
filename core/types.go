package core

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// FormatFromExtension maps a file extension (with or without the leading
// dot) to the codec used to write it.
func FormatFromExtension(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "jpe":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "tif", "tiff":
		return FormatTIFF
	case "webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information without loading pixel data.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
	Rotated    bool // an orientation fix was applied during this transform
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded pixel buffer when needed.
type ImageData struct {
	// Encoded bytes: raw input before decode, encoded output after encode.
	Data   []byte
	Format Format

	// Decoded pixel buffer: image.Image for the pure-Go backend, *vips.VipsImage
	// for the libvips backend.
	Image interface{}

	Meta Metadata

	OriginalSize int64
}

// ProcessingResult is returned to the caller after the full pipeline completes.
type ProcessingResult struct {
	Primary *ImageData

	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Source abstracts where raw bytes come from.
type Source struct {
	Reader      io.Reader
	ContentType string // optional hint
	Name        string // optional logical name / filename
	Size        int64  // -1 if unknown
}

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// StorageKey identifies a file below the cache root. Bucket is the
// directory relative to the root (empty when cache files are flattened).
type StorageKey struct {
	Bucket string
	Path   string
}

// TransformSpec is the decoded intent of a preset token.
//
// Width, Height and Quality are nil when the token (and the configured
// defaults) leave them unset. Extra keeps unrecognised directives verbatim, in
// order of first appearance.
type TransformSpec struct {
	Width   *int
	Height  *int
	Crop    bool
	Quality *int
	Extra   []Directive
}

// Directive is an unrecognised key/value fragment of a preset token.
type Directive struct {
	Key   string
	Value string
}

// HasDimensions reports whether a width or a height was requested.
func (s TransformSpec) HasDimensions() bool { return s.Width != nil || s.Height != nil }

// Clone returns a deep copy so the effective and original specs never share
// pointers.
func (s TransformSpec) Clone() TransformSpec {
	out := TransformSpec{Crop: s.Crop}
	out.Width = cloneInt(s.Width)
	out.Height = cloneInt(s.Height)
	out.Quality = cloneInt(s.Quality)
	if len(s.Extra) > 0 {
		out.Extra = append([]Directive(nil), s.Extra...)
	}
	return out
}

// IntOrZero dereferences p, returning 0 for nil.
func IntOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SourceAsset is the unmodified stored image. It is read-only.
type SourceAsset struct {
	// RelPath is the request path relative to the image root, slash separated.
	RelPath string
	// Path is the absolute filesystem path.
	Path    string
	ModTime time.Time
	Width   int
	Height  int
	MIME    string
}

// Ext returns the lower-cased extension of the source path without the dot.
func (a SourceAsset) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(a.Path), "."))
}

// CacheEntry is a derived variant on disk.
type CacheEntry struct {
	Key    StorageKey
	Path   string // absolute path of the cache file
	Dir    string // absolute directory holding the cache file
	Ext    string // resolved output extension
	Exists bool
}

// Request is the per-request context value handed to the service by the
// router: the preset token and the image path relative to the image root.
type Request struct {
	ID          string
	PresetToken string
	SourcePath  string
}
