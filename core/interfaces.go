package core

import (
	"context"
	"io"
)

// Decoder converts raw bytes / a reader into an in-memory ImageData.
// Implementations live in adapters/decoder/ and adapters/vips/.
type Decoder interface {
	// Decode reads from r and returns a decoded ImageData.
	Decode(ctx context.Context, r io.Reader) (*ImageData, error)
	// Probe reads just enough of r to report the pixel dimensions.
	Probe(ctx context.Context, r io.Reader) (Metadata, error)
	// CanDecode reports whether this decoder handles the given format hint.
	CanDecode(format Format) bool
}

// Encoder serialises an ImageData to bytes in a target format.
// Implementations live in adapters/encoder/ and adapters/vips/.
type Encoder interface {
	Encode(ctx context.Context, img *ImageData, opts EncodeOptions) ([]byte, error)
	CanEncode(format Format) bool
	// StripsMetadata reports whether encoded output never carries the source
	// metadata. When false, a rotated image needs an explicit strip.
	StripsMetadata() bool
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Quality int // 1-100; 0 = use encoder default
}

// StepFactory builds the geometric steps of a transform for one backend.
type StepFactory interface {
	// Rotate turns the image clockwise by degrees (180, 90 or -90).
	Rotate(degrees int) Step
	// Cover resizes so the image covers width x height, then crops the
	// overflow centred.
	Cover(width, height int) Step
	// Fit resizes to fit within the bounds. A zero bound is unconstrained.
	Fit(width, height int) Step
}

// OrientationReader extracts the EXIF orientation tag of a file.
type OrientationReader interface {
	Orientation(ctx context.Context, path string) (int, error)
}

// MetadataStripper removes embedded metadata from an encoded file in place.
type MetadataStripper interface {
	StripFile(ctx context.Context, path string) error
}

// StorageAdapter persists generated variants below the cache root.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key StorageKey, r io.Reader) error
	Exists(ctx context.Context, key StorageKey) (bool, error)
	PathOf(key StorageKey) string
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordProcessingTime(stepName string, d interface{ Seconds() float64 })
	RecordThroughput(bytes int64)
	RecordError(stepName string, category string)
	RecordDecision(outcome string)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Registry maps Format values to Decoder/Encoder implementations.
type Registry interface {
	DecoderFor(format Format) (Decoder, bool)
	EncoderFor(format Format) (Encoder, bool)
	RegisterDecoder(format Format, d Decoder)
	RegisterEncoder(format Format, e Encoder)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
