package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Skryldev/variant-cache/config"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/utils"
)

// Processor runs transform steps over a source image.  It is safe for
// concurrent use; every request gets its own ImageData.
type Processor struct {
	cfg     config.Config
	hooks   []Hook
	logger  Logger
	metrics MetricsCollector

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config.
func New(cfg config.Config) *Processor {
	return &Processor{
		cfg:    cfg,
		logger: NopLogger{},
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) { p.logger = l }

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) { p.metrics = m }

// AddHook registers a pipeline hook.
func (p *Processor) AddHook(h Hook) { p.hooks = append(p.hooks, h) }

// Process reads from src, runs steps, and returns a ProcessingResult.
func (p *Processor) Process(ctx context.Context, src Source, steps ...Step) (*ProcessingResult, error) {
	if len(steps) == 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, "process", apperrors.ErrEmptyInput)
	}

	start := time.Now()

	// --- 1. Drain source into memory (respecting max size limit) -------------
	var limitedR = src.Reader
	if p.cfg.MaxImageBytes > 0 {
		limitedR = &utils.LimitedReader{R: src.Reader, Max: p.cfg.MaxImageBytes}
	}

	buf, err := utils.DrainReader(ctx, limitedR, p.cfg.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "process.drain", err)
	}
	rawBytes := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	// --- 2. Detect format ----------------------------------------------------
	format := Format(utils.DetectFormat(rawBytes))
	if ct := contentTypeToFormat(src.ContentType); ct != FormatUnknown {
		format = ct
	}

	img := &ImageData{
		Data:         rawBytes,
		Format:       format,
		OriginalSize: int64(len(rawBytes)),
	}

	// --- 3. Run steps --------------------------------------------------------
	timings := make(map[string]time.Duration, len(steps))
	current := img
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)
		}
		p.notifyBefore(ctx, step.Name(), current)
		t := time.Now()
		next, stepErr := step.Execute(ctx, current)
		elapsed := time.Since(t)
		timings[step.Name()] = elapsed
		p.notifyAfter(ctx, step.Name(), next, elapsed, stepErr)
		if stepErr != nil {
			atomic.AddInt64(&p.errorCount, 1)
			p.recordError(step.Name(), stepErr)
			return nil, stepErr
		}
		current = next
	}

	atomic.AddInt64(&p.processedCount, 1)

	return &ProcessingResult{
		Primary:        current,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}, nil
}

func (p *Processor) recordError(step string, err error) {
	if p.metrics == nil {
		return
	}
	category := "unknown"
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		category = string(pe.Category)
	}
	p.metrics.RecordError(step, category)
}

func (p *Processor) notifyBefore(ctx context.Context, name string, img *ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Processor) notifyAfter(ctx context.Context, name string, img *ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/tiff":
		return FormatTIFF
	case "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ProcessedCount returns the total number of successfully processed images.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of processing errors.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
