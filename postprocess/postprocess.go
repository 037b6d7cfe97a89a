// Package postprocess runs external commands (optimisers and the like) over
// freshly generated cache files.
package postprocess

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Skryldev/variant-cache/core"
	apperrors "github.com/Skryldev/variant-cache/errors"
)

// Shell interprets each command template.
const Shell = "/bin/sh"

// Runner executes Commands in order, each as `<command> "<file>"`.
type Runner struct {
	Commands []string
	Logger   core.Logger
}

// Run invokes every command with path as its final argument. A failing
// command is logged and does not stop the ones after it. The returned errors
// are all recovered and for inspection only. Cancelling ctx does not kill a
// command: it may be rewriting the cache file in place.
func (r *Runner) Run(ctx context.Context, path string) []error {
	ctx = context.WithoutCancel(ctx)
	var failed []error
	for _, cmd := range r.Commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		start := time.Now()
		// The path travels as $1 so it is never re-parsed by the shell.
		c := exec.CommandContext(ctx, Shell, "-c", cmd+` "$1"`, "variantcache", path)
		var stderr bytes.Buffer
		c.Stderr = &stderr

		if err := c.Run(); err != nil {
			err = apperrors.Recovered(apperrors.CategoryPipeline, "postprocess",
				fmt.Errorf("%s: %w: %s", cmd, err, strings.TrimSpace(stderr.String())))
			failed = append(failed, err)
			r.logger().Warn("post-process command failed", "command", cmd, "path", path, "error", err)
			continue
		}
		r.logger().Debug("post-process command done", "command", cmd, "path", path, "duration", time.Since(start))
	}
	return failed
}

func (r *Runner) logger() core.Logger {
	if r.Logger == nil {
		return core.NopLogger{}
	}
	return r.Logger
}
