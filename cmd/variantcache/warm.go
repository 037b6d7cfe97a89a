package main

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Skryldev/variant-cache/core"
)

var warmPresets []string

var warmCmd = &cobra.Command{
	Use:   "warm [path...]",
	Short: "Generate variants ahead of time",
	Long: `warm runs every preset against every path (relative to image_root) and
writes the variants to the cache without serving them. With no paths, every
image below image_root is warmed. With no --preset, the configured presets
are used.`,
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().StringSliceVarP(&warmPresets, "preset", "p", nil, "preset token, repeatable")
}

func runWarm(cmd *cobra.Command, args []string) error {
	presets := warmPresets
	if len(presets) == 0 {
		presets = cfg.Presets
	}
	if len(presets) == 0 {
		return fmt.Errorf("no presets: pass --preset or configure presets")
	}

	paths := args
	if len(paths) == 0 {
		var err error
		if paths, err = imagesBelow(cfg.ImageRoot, cfg.CacheDir); err != nil {
			return err
		}
	}

	svc, ins, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	reqs := make([]core.Request, 0, len(paths)*len(presets))
	for _, p := range paths {
		for _, preset := range presets {
			reqs = append(reqs, core.Request{PresetToken: preset, SourcePath: p})
		}
	}

	failed := 0
	out := cmd.OutOrStdout()
	for i, err := range svc.Warm(cmd.Context(), reqs) {
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s %s: %v\n", reqs[i].PresetToken, reqs[i].SourcePath, err)
		}
	}

	snap := ins.metrics.Snapshot()
	fmt.Fprintf(out, "\nwarmed %d request(s): %d generated, %d cached, %d source, %d failed\n",
		len(reqs), snap.Decisions["generate"], snap.Decisions["serve_cached"], snap.Decisions["serve_source"], failed)
	for _, s := range ins.latency.AllStats() {
		fmt.Fprintln(out, "  "+s.String())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d request(s) failed", failed, len(reqs))
	}
	return nil
}

// imagesBelow lists the files under root with a known image extension,
// relative to root and slash separated. cacheDir is skipped when it lives
// inside root.
func imagesBelow(root, cacheDir string) ([]string, error) {
	skip, _ := filepath.Abs(cacheDir)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(p); abs == skip {
				return filepath.SkipDir
			}
			return nil
		}
		if core.FormatFromExtension(filepath.Ext(p)) == core.FormatUnknown {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}
