// Package decision picks how a request is answered: from the source, from an
// existing cache file, or by generating the cache file first.
package decision

import (
	"context"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// Outcome is the result of Decide.
type Outcome int

const (
	ServeSource Outcome = iota
	ServeCachedExisting
	GenerateThenServeCached
)

func (o Outcome) String() string {
	switch o {
	case ServeSource:
		return "serve_source"
	case ServeCachedExisting:
		return "serve_cached"
	case GenerateThenServeCached:
		return "generate"
	}
	return "unknown"
}

// Policy holds the configurable parts of the decision.
type Policy struct {
	// ServeSourceOnSameDimensions serves the source when the requested size
	// equals the source size.
	ServeSourceOnSameDimensions bool
}

// Engine evaluates the decision for one request at a time. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	Policy      Policy
	Orientation core.OrientationReader
	Logger      core.Logger
}

// Decide returns the outcome for src and entry. requested is the effective
// (clamped) spec.
//
// The only error path is a cancelled context; EXIF trouble is logged and
// treated as "no rotation needed".
func (e *Engine) Decide(ctx context.Context, src core.SourceAsset, entry core.CacheEntry, requested core.TransformSpec) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if entry.Exists {
		return ServeCachedExisting, nil
	}

	if core.NeedsRotation(e.orientation(ctx, src.Path)) {
		return GenerateThenServeCached, nil
	}

	sameSize := requested.Width != nil && requested.Height != nil &&
		*requested.Width == src.Width && *requested.Height == src.Height
	if (e.Policy.ServeSourceOnSameDimensions && sameSize) || !requested.HasDimensions() {
		return ServeSource, nil
	}
	return GenerateThenServeCached, nil
}

func (e *Engine) orientation(ctx context.Context, path string) int {
	if e.Orientation == nil {
		return 0
	}
	o, err := e.Orientation.Orientation(ctx, path)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Debug("orientation unavailable", "path", path, "error", err,
				"recovered", apperrors.IsRecovered(err))
		}
		return 0
	}
	return o
}
