package utils

import (
	"bytes"
	"math"
	"net/http"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatGIF     = "gif"
	formatBMP     = "bmp"
	formatTIFF    = "tiff"
	formatWebP    = "webp"
	formatUnknown = "unknown"
)

// DetectFormat sniffs the leading bytes of data and returns the image format.
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return formatUnknown
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return formatJPEG
	case data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return formatPNG
	case bytes.HasPrefix(data, []byte("GIF8")):
		return formatGIF
	case data[0] == 'B' && data[1] == 'M':
		return formatBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return formatTIFF
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return formatWebP
	}
	// Fallback to net/http sniffing.
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return formatJPEG
	case "image/png":
		return formatPNG
	case "image/gif":
		return formatGIF
	case "image/bmp":
		return formatBMP
	case "image/webp":
		return formatWebP
	}
	return formatUnknown
}

// FitDimensions computes the output size of resizing srcW x srcH so it fits
// within targetW x targetH while keeping the aspect ratio. A zero target
// leaves that axis unconstrained; both zero returns the source size. The
// result may be larger than the source.
func FitDimensions(srcW, srcH, targetW, targetH int) (int, int) {
	if srcW <= 0 || srcH <= 0 || (targetW <= 0 && targetH <= 0) {
		return srcW, srcH
	}
	rw := float64(targetW) / float64(srcW)
	rh := float64(targetH) / float64(srcH)
	var ratio float64
	switch {
	case targetW <= 0:
		ratio = rh
	case targetH <= 0:
		ratio = rw
	default:
		ratio = math.Min(rw, rh)
	}
	w := int(math.Round(float64(srcW) * ratio))
	h := int(math.Round(float64(srcH) * ratio))
	return max(w, 1), max(h, 1)
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
