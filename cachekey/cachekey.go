// Package cachekey derives the deterministic on-disk location of a variant.
//
// The file name is
//
//	lower(basename without ext) + "_" + Encode(original spec) + "." + ext
//
// and it never depends on the source's modification time. Tooling that
// pre-warms or inspects the cache relies on this naming.
package cachekey

import (
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Skryldev/variant-cache/core"
)

// Encode joins the spec as key=value pairs in the fixed order w, h, c, q,
// followed by any unrecognised directives in order of first appearance.
// Unset values encode as empty strings; crop encodes as 1 or 0.
func Encode(spec core.TransformSpec) string {
	var b strings.Builder
	write := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	write("w", optInt(spec.Width))
	write("h", optInt(spec.Height))
	if spec.Crop {
		write("c", "1")
	} else {
		write("c", "0")
	}
	write("q", optInt(spec.Quality))
	for _, d := range spec.Extra {
		write(d.Key, d.Value)
	}
	return b.String()
}

func optInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

// Resolver maps a source asset and its original spec to a CacheEntry.
type Resolver struct {
	// Root is the cache directory.
	Root string
	// Mimic mirrors the source's directory below Root.
	Mimic bool
	Sniff Sniffer
}

// NewResolver returns a Resolver that sniffs with mimetype.
func NewResolver(root string, mimic bool) *Resolver {
	return &Resolver{Root: root, Mimic: mimic, Sniff: MimeSniffer{}}
}

// Resolve computes the cache location. Exists is left false; the storage
// layer fills it in.
func (r *Resolver) Resolve(src core.SourceAsset, original core.TransformSpec) core.CacheEntry {
	sniff := r.Sniff
	switch {
	case src.MIME != "":
		mime := src.MIME
		sniff = SnifferFunc(func(string) (string, error) { return mime, nil })
	case sniff == nil:
		sniff = MimeSniffer{}
	}
	ext := ResolveExtension(src.Path, sniff)
	name := FileName(src.Path, original, ext)

	bucket := ""
	if r.Mimic {
		if d := path.Dir(filepath.ToSlash(src.RelPath)); d != "." && d != "/" {
			bucket = strings.TrimPrefix(d, "/")
		}
	}
	dir := filepath.Join(r.Root, filepath.FromSlash(bucket))

	return core.CacheEntry{
		Key:  core.StorageKey{Bucket: bucket, Path: name},
		Path: filepath.Join(dir, name),
		Dir:  dir,
		Ext:  ext,
	}
}

// FileName builds the cache file name for sourcePath.
func FileName(sourcePath string, original core.TransformSpec, ext string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToLower(base) + "_" + Encode(original) + "." + ext
}
