package cachekey

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// octetStream is what some image toolchains report for perfectly good JPEGs.
const octetStream = "application/octet-stream"

// Sniffer reports the MIME type of a file from its content.
type Sniffer interface {
	Sniff(path string) (string, error)
}

// MimeSniffer sniffs with gabriel-vasile/mimetype.
type MimeSniffer struct{}

func (MimeSniffer) Sniff(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// SnifferFunc adapts a function to Sniffer.
type SnifferFunc func(path string) (string, error)

func (f SnifferFunc) Sniff(path string) (string, error) { return f(path) }

// ResolveExtension returns the output extension for path, without the dot.
//
// A path extension wins (lower-cased). Otherwise the file is sniffed:
// octet-stream means jpg, a known MIME maps through the mimetype table (jpe
// is folded into jpg), and anything else falls back to substring checks.
func ResolveExtension(path string, sniff Sniffer) string {
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		return strings.ToLower(ext)
	}

	mime := ""
	if sniff != nil {
		// An unreadable file still gets a name; decoding will fail later.
		mime, _ = sniff.Sniff(path)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	mime = strings.ToLower(mime)

	if mime == octetStream {
		return "jpg"
	}
	if ext := extensionFor(mime); ext != "" {
		if ext == "jpe" {
			return "jpg"
		}
		return ext
	}

	switch {
	case strings.Contains(mime, "bmp"):
		return "jpg"
	case strings.Contains(mime, "png"):
		return "png"
	case strings.Contains(mime, "gif"):
		return "gif"
	}
	return "jpg"
}

func extensionFor(mime string) string {
	if mime == "" {
		return ""
	}
	m := mimetype.Lookup(mime)
	if m == nil {
		return ""
	}
	return strings.TrimPrefix(m.Extension(), ".")
}
