package variantcache

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Skryldev/variant-cache/adapters/storage"
	"github.com/Skryldev/variant-cache/cachekey"
	"github.com/Skryldev/variant-cache/core"
	"github.com/Skryldev/variant-cache/decision"
	"github.com/Skryldev/variant-cache/delivery"
	apperrors "github.com/Skryldev/variant-cache/errors"
	"github.com/Skryldev/variant-cache/params"
	"github.com/Skryldev/variant-cache/pipeline"
)

// requestState carries one request through
//
//	resolve → decide → [generate] → deliver
//
// Warm requests have no writer and stop before deliver.
type requestState struct {
	req core.Request
	w   http.ResponseWriter
	r   *http.Request
	log core.Logger

	src       core.SourceAsset
	original  core.TransformSpec
	effective core.TransformSpec
	entry     core.CacheEntry
	outcome   decision.Outcome
	servePath string
}

// stateFn runs one state and returns the next, nil when the request is done.
type stateFn func(ctx context.Context, rs *requestState) (stateFn, error)

func (s *Service) newRequest(req core.Request) *requestState {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return &requestState{req: req, log: withFields(s.logger, "request_id", req.ID)}
}

func (s *Service) run(ctx context.Context, rs *requestState) error {
	state := stateFn(s.resolve)
	for state != nil {
		var err error
		if state, err = state(ctx, rs); err != nil {
			atomic.AddInt64(&s.failed, 1)
			if apperrors.StatusCode(err) == http.StatusNotFound {
				rs.log.Info("request.rejected", "path", rs.req.SourcePath, "preset", rs.req.PresetToken, "error", err.Error())
			} else {
				rs.log.Error("request.failed", "path", rs.req.SourcePath, "preset", rs.req.PresetToken, "error", err.Error())
			}
			return err
		}
	}
	return nil
}

// resolve validates the token, locates the source and computes the cache
// entry. Client errors are reported before anything touches the cache.
func (s *Service) resolve(ctx context.Context, rs *requestState) (stateFn, error) {
	if err := params.CheckPreset(rs.req.PresetToken, s.cfg.EnforcePresets, s.cfg.Presets); err != nil {
		return nil, err
	}
	original, err := params.Decode(rs.req.PresetToken, s.defaults)
	if err != nil {
		return nil, err
	}
	src, err := s.source(ctx, rs.req.SourcePath)
	if err != nil {
		return nil, err
	}

	rs.src = src
	rs.original = original
	rs.effective = params.Effective(original, s.cfg.ScaleUp, src.Width, src.Height)
	rs.entry = s.keys.Resolve(src, original)

	if err := s.ensureDirs(rs); err != nil {
		return nil, err
	}
	if rs.entry.Exists, err = s.store.Exists(ctx, rs.entry.Key); err != nil {
		return nil, err
	}
	return s.decide, nil
}

// source confines reqPath to the image root and probes the file's size.
func (s *Service) source(ctx context.Context, reqPath string) (core.SourceAsset, error) {
	rel := path.Clean(strings.TrimPrefix(filepath.ToSlash(reqPath), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return core.SourceAsset{}, apperrors.New(apperrors.CategoryNotFound, "source.resolve",
			fmt.Errorf("%w: %q", apperrors.ErrInvalidPath, reqPath))
	}
	abs := filepath.Join(s.cfg.ImageRoot, filepath.FromSlash(rel))

	fi, err := os.Stat(abs)
	if err != nil || !fi.Mode().IsRegular() {
		return core.SourceAsset{}, apperrors.New(apperrors.CategoryNotFound, "source.stat",
			fmt.Errorf("%w: %s", apperrors.ErrSourceNotFound, rel))
	}

	src := core.SourceAsset{RelPath: rel, Path: abs, ModTime: fi.ModTime()}
	if src.Ext() == "" {
		src.MIME, _ = cachekey.MimeSniffer{}.Sniff(abs)
	}

	dec, ok := s.reg.DecoderFor(core.FormatFromExtension(src.Ext()))
	if !ok {
		return core.SourceAsset{}, apperrors.New(apperrors.CategoryNotFound, "source.probe",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, rel))
	}
	f, err := os.Open(abs)
	if err != nil {
		return core.SourceAsset{}, apperrors.New(apperrors.CategoryNotFound, "source.open",
			fmt.Errorf("%w: %v", apperrors.ErrSourceNotFound, err))
	}
	defer f.Close()

	meta, err := dec.Probe(ctx, f)
	if err != nil {
		return core.SourceAsset{}, apperrors.New(apperrors.CategoryNotFound, "source.probe",
			fmt.Errorf("%w: %v", apperrors.ErrSourceNotFound, err))
	}
	src.Width, src.Height = meta.Width, meta.Height
	return src, nil
}

// ensureDirs makes sure the cache root and, when mirroring, the entry's
// directory exist. A creation race with another request is not an error.
func (s *Service) ensureDirs(rs *requestState) error {
	dirs := []string{s.store.Root()}
	if rs.entry.Dir != s.store.Root() {
		dirs = append(dirs, rs.entry.Dir)
	}
	for _, dir := range dirs {
		state, err := s.store.EnsureDir(dir)
		if err != nil {
			return err
		}
		if state != storage.DirExisted {
			rs.log.Debug("cache.dir", "dir", dir, "state", state.String())
		}
	}
	return nil
}

func (s *Service) decide(ctx context.Context, rs *requestState) (stateFn, error) {
	outcome, err := s.engine.Decide(ctx, rs.src, rs.entry, rs.effective)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "decide", err)
	}
	rs.outcome = outcome
	if s.metrics != nil {
		s.metrics.RecordDecision(outcome.String())
	}
	rs.log.Debug("request.decided", "outcome", outcome.String(), "cache_file", rs.entry.Path)

	switch outcome {
	case decision.ServeSource:
		rs.servePath = rs.src.Path
	case decision.ServeCachedExisting:
		rs.servePath = rs.entry.Path
	default:
		return s.generate, nil
	}
	return s.deliver, nil
}

// generate writes the cache file for the effective spec, then runs the
// configured post-processing commands on it. Once the lock is held the work
// runs to completion even if the client goes away: a file written but not yet
// stripped or post-processed must never be left in the cache.
func (s *Service) generate(ctx context.Context, rs *requestState) (stateFn, error) {
	rs.servePath = rs.entry.Path

	if s.cfg.GenerationLock {
		release, err := s.store.Lock(ctx, rs.entry.Key)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(); err != nil {
				rs.log.Warn("cache.unlock.failed", "cache_file", rs.entry.Path, "error", err.Error())
			}
		}()
		if ok, err := s.store.Exists(ctx, rs.entry.Key); err == nil && ok {
			rs.log.Debug("cache.generated.elsewhere", "cache_file", rs.entry.Path)
			return s.deliver, nil
		}
	}

	ctx = context.WithoutCancel(ctx)

	rotation := 0
	if o, err := s.orient.Orientation(ctx, rs.src.Path); err != nil {
		rs.log.Debug("exif.unreadable", "path", rs.src.Path, "error", err.Error())
	} else if deg, ok := core.RotationFor(o); ok {
		rotation = deg
	}

	f, err := os.Open(rs.src.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryNotFound, "generate.open",
			fmt.Errorf("%w: %v", apperrors.ErrSourceNotFound, err))
	}
	defer f.Close()

	steps := s.planner.Plan(pipeline.Variant{
		Spec:     rs.effective,
		Rotation: rotation,
		Format:   core.FormatFromExtension(rs.entry.Ext),
		Quality:  core.IntOrZero(rs.effective.Quality),
		Key:      rs.entry.Key,
	})
	res, err := s.proc.Process(ctx, core.Source{
		Reader:      f,
		ContentType: rs.src.MIME,
		Name:        rs.src.Path,
		Size:        -1,
	}, steps...)
	if err != nil {
		return nil, err
	}
	rs.log.Info("cache.generated",
		"cache_file", rs.entry.Path,
		"width", res.Primary.Meta.Width,
		"height", res.Primary.Meta.Height,
		"rotation", rotation,
		"bytes", res.Primary.Meta.SizeBytes,
		"duration_ms", res.ProcessingTime.Milliseconds(),
	)

	s.post.Run(ctx, rs.entry.Path)
	return s.deliver, nil
}

// deliver streams servePath. It is the last state of every served request.
func (s *Service) deliver(_ context.Context, rs *requestState) (stateFn, error) {
	if rs.w == nil {
		return nil, nil
	}
	res, err := delivery.Deliver(rs.w, rs.r, rs.servePath, delivery.Options{
		TTL:       s.cfg.TTL(),
		ChunkSize: s.cfg.ChunkSize,
	})
	if err != nil {
		if !apperrors.IsRecovered(err) {
			return nil, err
		}
		// Headers are out; the client went away mid-body.
		rs.log.Debug("delivery.aborted", "file", rs.servePath, "error", err.Error())
	}
	atomic.AddInt64(&s.served, 1)
	rs.log.Info("request.served",
		"outcome", rs.outcome.String(),
		"status", res.Status,
		"bytes", res.Bytes,
		"file", rs.servePath,
	)
	return nil, nil
}

// fieldLogger prepends fixed fields to every record.
type fieldLogger struct {
	next   core.Logger
	fields []interface{}
}

func withFields(l core.Logger, fields ...interface{}) core.Logger {
	return &fieldLogger{next: l, fields: fields}
}

func (l *fieldLogger) with(fields []interface{}) []interface{} {
	return append(append(make([]interface{}, 0, len(l.fields)+len(fields)), l.fields...), fields...)
}

func (l *fieldLogger) Debug(msg string, f ...interface{}) { l.next.Debug(msg, l.with(f)...) }
func (l *fieldLogger) Info(msg string, f ...interface{})  { l.next.Info(msg, l.with(f)...) }
func (l *fieldLogger) Warn(msg string, f ...interface{})  { l.next.Warn(msg, l.with(f)...) }
func (l *fieldLogger) Error(msg string, f ...interface{}) { l.next.Error(msg, l.with(f)...) }
