// Package classify decides how a file's content should be previewed and turns
// raw byte windows into something displayable.
package classify

import (
	"bytes"
	"fmt"
	"strings"
)

// Disposition is the outcome of classifying a file's content.
type Disposition int

const (
	Binary Disposition = iota
	Text
	Image
)

func (d Disposition) String() string {
	switch d {
	case Text:
		return "text"
	case Image:
		return "image"
	default:
		return "binary"
	}
}

const (
	DefaultSampleSize = 4096
	DefaultPageSize   = 256 * 1024
	DefaultImageMax   = 8 * 1024 * 1024
	DefaultHexMax     = 32 * 1024
)

// Limits bounds how much of a file each preview mode reads.
type Limits struct {
	SampleSize int64 // head sample used for classification
	PageSize   int64 // one text page
	ImageMax   int64 // largest image that is decoded
	HexMax     int64 // bytes shown in the hex dump
}

func DefaultLimits() Limits {
	return Limits{
		SampleSize: DefaultSampleSize,
		PageSize:   DefaultPageSize,
		ImageMax:   DefaultImageMax,
		HexMax:     DefaultHexMax,
	}
}

// Normalize replaces non-positive fields with their defaults.
func (l Limits) Normalize() Limits {
	d := DefaultLimits()
	if l.SampleSize <= 0 {
		l.SampleSize = d.SampleSize
	}
	if l.PageSize <= 0 {
		l.PageSize = d.PageSize
	}
	if l.ImageMax <= 0 {
		l.ImageMax = d.ImageMax
	}
	if l.HexMax <= 0 {
		l.HexMax = d.HexMax
	}
	return l
}

var textExts = map[string]bool{
	".txt": true, ".md": true, ".log": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".html": true, ".css": true, ".scss": true, ".sh": true, ".sql": true,
	".xml": true, ".csv": true, ".dat": true, ".go": true, ".rs": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".f90": true,
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
}

// IsTextExt reports whether ext (lower-case, with dot) is always shown as text.
func IsTextExt(ext string) bool { return textExts[strings.ToLower(ext)] }

// IsImageExt reports whether ext (lower-case, with dot) names an image format.
func IsImageExt(ext string) bool { return imageExts[strings.ToLower(ext)] }

// IsImage reports whether a file qualifies for image preview from its
// extension and size alone.
func IsImage(ext string, size int64, limits Limits) bool {
	return IsImageExt(ext) && size <= limits.Normalize().ImageMax
}

// Classify picks the disposition for a file.
func Classify(ext string, sample []byte, size int64, limits Limits) Disposition {
	if IsImage(ext, size, limits) {
		return Image
	}
	if IsTextExt(ext) || LooksLikeText(sample) {
		return Text
	}
	return Binary
}

const (
	nulParityThreshold = 0.15
	printableThreshold = 0.70
)

// LooksLikeText guesses whether sample is human-readable text.
//
// Samples with NUL bytes only pass when the NULs cluster on even or odd
// offsets the way two-byte encodings do; the rest must be mostly printable
// ASCII or tab/newline/carriage-return.
func LooksLikeText(sample []byte) bool {
	if len(sample) == 0 {
		return true
	}
	n := float64(len(sample))

	if bytes.IndexByte(sample, 0) >= 0 {
		var even, odd int
		for i, b := range sample {
			if b != 0 {
				continue
			}
			if i%2 == 0 {
				even++
			} else {
				odd++
			}
		}
		if float64(max(even, odd)) < n*nulParityThreshold {
			return false
		}
	}

	printable := 0
	for _, b := range sample {
		if b == '\t' || b == '\n' || b == '\r' || (b >= 32 && b <= 126) {
			printable++
		}
	}
	return float64(printable)/n >= printableThreshold
}

const hexBytesPerLine = 16

// HexDump renders data as offset, hex and ASCII columns, 16 bytes per line.
func HexDump(data []byte) string {
	var sb strings.Builder
	hexWidth := hexBytesPerLine*3 - 1
	for off := 0; off < len(data); off += hexBytesPerLine {
		chunk := data[off:min(off+hexBytesPerLine, len(data))]

		var hexPart strings.Builder
		for i, b := range chunk {
			if i > 0 {
				hexPart.WriteByte(' ')
			}
			fmt.Fprintf(&hexPart, "%02x", b)
		}

		ascii := make([]byte, len(chunk))
		for i, b := range chunk {
			if b >= 32 && b <= 126 {
				ascii[i] = b
			} else {
				ascii[i] = '.'
			}
		}

		if off > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%08x  %-*s  %s", off, hexWidth, hexPart.String(), ascii)
	}
	return sb.String()
}
