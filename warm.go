package variantcache

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/variant-cache/core"
)

// Warm runs reqs through resolve, decide and generate without delivering
// anything, so later requests are served from the cache. At most
// WorkerCount requests run at once. errs[i] belongs to reqs[i]; one failure
// does not stop the others.
func (s *Service) Warm(ctx context.Context, reqs []core.Request) []error {
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.workers())
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = s.run(ctx, s.newRequest(req))
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Service) workers() int {
	if s.cfg.WorkerCount > 0 {
		return s.cfg.WorkerCount
	}
	return runtime.NumCPU()
}
