package classify

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const (
	EncodingUTF8   = "utf-8"
	EncodingUTF16  = "utf-16"
	EncodingLatin1 = "latin-1"
)

var (
	bomLE = []byte{0xFF, 0xFE}
	bomBE = []byte{0xFE, 0xFF}
)

// Decoded is text recovered from a byte buffer together with the encoding
// that produced it.
type Decoded struct {
	Text     string
	Encoding string
}

// Printable makes remote text safe to write to a terminal. Escape sequences
// are removed, carriage returns dropped and any other control character
// except tab and newline shown as U+FFFD.
func Printable(s string) string {
	s = ansi.Strip(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n':
			return r
		case r == '\r':
			return -1
		case r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0):
			return utf8.RuneError
		}
		return r
	}, s)
}

// DecodeBytes decodes data with the fallback chain
// BOM-directed UTF-16, UTF-8, UTF-16LE (rejected if it still holds NULs),
// Latin-1. The last step cannot fail.
func DecodeBytes(data []byte) Decoded {
	if len(data) == 0 {
		return Decoded{Text: "", Encoding: EncodingUTF8}
	}

	if bytes.HasPrefix(data, bomLE) || bytes.HasPrefix(data, bomBE) {
		if text, ok := decodeUTF16(data); ok {
			return Decoded{Text: text, Encoding: EncodingUTF16}
		}
	}

	if utf8.Valid(data) {
		return Decoded{Text: string(data), Encoding: EncodingUTF8}
	}

	// Without a BOM two-byte text is read little-endian, and a result that
	// still carries NULs does not count.
	if text, ok := decodeUTF16(data); ok && !strings.ContainsRune(text, 0) {
		return Decoded{Text: text, Encoding: EncodingUTF16}
	}

	text, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		// ISO 8859-1 maps all 256 byte values; this is unreachable in practice.
		return Decoded{Text: strings.ToValidUTF8(string(data), "�"), Encoding: EncodingLatin1}
	}
	return Decoded{Text: string(text), Encoding: EncodingLatin1}
}

// decodeUTF16 strictly decodes data as UTF-16. A leading BOM selects the byte
// order and is stripped; without one little-endian is assumed. Odd lengths and
// unpaired surrogates fail.
func decodeUTF16(data []byte) (string, bool) {
	var order binary.ByteOrder = binary.LittleEndian
	endian := unicode.LittleEndian
	body := data
	switch {
	case bytes.HasPrefix(data, bomLE):
		body = data[2:]
	case bytes.HasPrefix(data, bomBE):
		order = binary.BigEndian
		endian = unicode.BigEndian
		body = data[2:]
	}

	if !validUTF16(body, order) {
		return "", false
	}
	out, err := unicode.UTF16(endian, unicode.IgnoreBOM).NewDecoder().Bytes(body)
	if err != nil {
		return "", false
	}
	return string(out), true
}

func validUTF16(b []byte, order binary.ByteOrder) bool {
	if len(b)%2 != 0 {
		return false
	}
	for i := 0; i < len(b); i += 2 {
		u := order.Uint16(b[i:])
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+4 > len(b) {
				return false
			}
			next := order.Uint16(b[i+2:])
			if next < 0xDC00 || next > 0xDFFF {
				return false
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		}
	}
	return true
}
