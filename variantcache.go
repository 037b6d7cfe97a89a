// Package variantcache serves resized, cropped and re-encoded variants of the
// images below a root directory, generating each variant once and caching it
// on disk.
package variantcache

import (
	"context"
	"net/http"

	"github.com/Skryldev/variant-cache/adapters/decoder"
	"github.com/Skryldev/variant-cache/adapters/encoder"
	"github.com/Skryldev/variant-cache/adapters/exif"
	"github.com/Skryldev/variant-cache/adapters/storage"
	"github.com/Skryldev/variant-cache/adapters/vips"
	"github.com/Skryldev/variant-cache/cachekey"
	"github.com/Skryldev/variant-cache/config"
	"github.com/Skryldev/variant-cache/core"
	"github.com/Skryldev/variant-cache/decision"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/params"
	"github.com/Skryldev/variant-cache/pipeline"
	"github.com/Skryldev/variant-cache/postprocess"
)

// DefaultConfig returns the historical configuration.
func DefaultConfig() config.Config { return config.Default() }

// Service is the primary entry point. It is safe for concurrent use; all
// per-request state lives in the request, never in the Service.
type Service struct {
	cfg      config.Config
	defaults params.Defaults

	reg     *core.DefaultRegistry
	proc    *core.Processor
	planner *pipeline.Planner
	store   *storage.Local
	keys    *cachekey.Resolver
	engine  *decision.Engine
	post    *postprocess.Runner

	orient  core.OrientationReader
	logger  core.Logger
	metrics core.MetricsCollector
	hooks   []core.Hook

	shutdown func()
	served   int64
	failed   int64
}

// Option customises a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(l core.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics attaches a metrics collector.
func WithMetrics(m core.MetricsCollector) Option { return func(s *Service) { s.metrics = m } }

// WithHook registers an observer for transform step events.
func WithHook(h core.Hook) Option { return func(s *Service) { s.hooks = append(s.hooks, h) } }

// WithOrientationReader replaces the backend's EXIF reader.
func WithOrientationReader(r core.OrientationReader) Option {
	return func(s *Service) { s.orient = r }
}

// New creates a fully wired Service for cfg. Nothing is created on disk until
// the first request reaches the cache.
func New(cfg config.Config, opts ...Option) (*Service, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "variantcache.new", err)
	}

	s := &Service{
		cfg:      cfg,
		defaults: params.DefaultsFrom(cfg.Defaults),
		reg:      core.NewRegistry(),
		logger:   core.NopLogger{},
		shutdown: func() {},
	}
	for _, opt := range opts {
		opt(s)
	}

	var factory core.StepFactory
	var stripper core.MetadataStripper
	switch cfg.Backend {
	case config.BackendVips:
		b := vips.NewBackend(vips.BackendConfig{
			DefaultQuality: cfg.DefaultQuality,
			MaxWorkers:     cfg.WorkerCount,
		})
		vips.RegisterVipsBackend(s.reg, b)
		factory, stripper = b, b
		if s.orient == nil {
			s.orient = b
		}
		s.shutdown = b.Shutdown
	default:
		encoder.Register(s.reg, decoder.NewImaging(), encoder.NewImaging(cfg.DefaultQuality))
		factory = pipeline.Std{}
		if s.orient == nil {
			s.orient = exif.NewReader()
		}
	}

	s.proc = core.New(cfg)
	s.proc.SetLogger(s.logger)
	if s.metrics != nil {
		s.proc.SetMetrics(s.metrics)
	}
	for _, h := range s.hooks {
		s.proc.AddHook(h)
	}

	s.store = storage.NewLocal(cfg.CacheDir, 0o755)
	s.keys = cachekey.NewResolver(cfg.CacheDir, cfg.MimicSourceDir)
	s.engine = &decision.Engine{
		Policy:      decision.Policy{ServeSourceOnSameDimensions: cfg.ServeDefaultOnSameDimensions},
		Orientation: s.orient,
		Logger:      s.logger,
	}
	s.planner = &pipeline.Planner{
		Registry: s.reg,
		Factory:  factory,
		Storage:  s.store,
		Stripper: stripper,
		Logger:   s.logger,
	}
	s.post = &postprocess.Runner{Commands: cfg.ExecCommands, Logger: s.logger}
	return s, nil
}

// Close releases backend resources. The Service must not be used afterwards.
func (s *Service) Close() { s.shutdown() }

// Config returns the configuration the Service was built with.
func (s *Service) Config() config.Config { return s.cfg }

// Serve runs one request to completion and writes the response to w. A
// non-nil error means nothing was written and the caller owns the response;
// its apperrors category selects the status.
func (s *Service) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, req core.Request) error {
	rs := s.newRequest(req)
	rs.w, rs.r = w, r
	return s.run(ctx, rs)
}
