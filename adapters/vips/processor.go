package vips

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/variant-cache/adapters/storage"
	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder, Encoder and StepFactory.
// Saved files keep the source metadata, so it also strips metadata on demand.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatTIFF,
		core.FormatWebP, core.FormatUnknown:
		return true
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	format := vipsFormatToCore(ref.Format())
	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  &VipsImage{ref: ref},
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:   ref.HasAlpha(),
			SizeBytes:  int64(len(raw)),
		},
		OriginalSize: int64(len(raw)),
	}, nil
}

// Probe loads the header only; libvips decodes pixels lazily.
func (b *Backend) Probe(ctx context.Context, r io.Reader) (core.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.probe", err)
	}
	ref, err := govips.NewImageFromReader(r)
	if err != nil {
		return core.Metadata{}, apperrors.Wrap(apperrors.CategoryDecode, "vips.probe", err)
	}
	defer ref.Close()
	return core.Metadata{
		Width:  ref.Width(),
		Height: ref.Height(),
		Format: vipsFormatToCore(ref.Format()),
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	switch f {
	case core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatTIFF, core.FormatWebP:
		return true
	}
	return false
}

// StripsMetadata is false: exports carry the EXIF block of the source.
func (b *Backend) StripsMetadata() bool { return false }

func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}

	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
			fmt.Errorf("image must be decoded with the vips backend first"))
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	var (
		buf []byte
		err error
	)
	switch img.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		buf, _, err = vi.ref.ExportJpeg(ep)
	case core.FormatPNG:
		buf, _, err = vi.ref.ExportPng(govips.NewPngExportParams())
	case core.FormatGIF:
		buf, _, err = vi.ref.ExportGIF(govips.NewGifExportParams())
	case core.FormatTIFF:
		buf, _, err = vi.ref.ExportTiff(govips.NewTiffExportParams())
	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		buf, _, err = vi.ref.ExportWebp(ep)
	default:
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode."+string(img.Format), err)
	}
	return buf, nil
}

// ─── Orientation / metadata ───────────────────────────────────────────────────

// Orientation reads the EXIF orientation through libvips. Errors are
// recovered: a file without EXIF is not a failure.
func (b *Backend) Orientation(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ref, err := govips.NewImageFromFile(path)
	if err != nil {
		return 0, apperrors.Recovered(apperrors.CategoryDecode, "vips.orientation", err)
	}
	defer ref.Close()
	return ref.Orientation(), nil
}

// StripFile rewrites path in its own format without metadata, replacing the
// file atomically.
func (b *Backend) StripFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref, err := govips.NewImageFromFile(path)
	if err != nil {
		return apperrors.Recovered(apperrors.CategoryPipeline, "vips.strip.load", err)
	}
	defer ref.Close()
	if err := ref.RemoveMetadata(); err != nil {
		return apperrors.Recovered(apperrors.CategoryPipeline, "vips.strip", err)
	}
	data, _, err := ref.ExportNative()
	if err != nil {
		return apperrors.Recovered(apperrors.CategoryPipeline, "vips.strip.export", err)
	}
	perm := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		perm = fi.Mode().Perm()
	}
	if err := storage.WriteFile(path, bytes.NewReader(data), perm); err != nil {
		return apperrors.Recovered(apperrors.CategoryPipeline, "vips.strip.write", err)
	}
	return nil
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend installs b as decoder and encoder for every format it
// handles.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	for _, f := range []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatGIF, core.FormatTIFF, core.FormatWebP} {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeTIFF:
		return core.FormatTIFF
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var (
	_ core.Decoder           = (*Backend)(nil)
	_ core.Encoder           = (*Backend)(nil)
	_ core.StepFactory       = (*Backend)(nil)
	_ core.OrientationReader = (*Backend)(nil)
	_ core.MetadataStripper  = (*Backend)(nil)
)
