package processor

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

type textDecoder struct {
	name   string
	decode func([]byte) (string, bool)
}

// textDecoders are tried in order; the first one that accepts the bytes wins.
var textDecoders = []textDecoder{
	{"utf-8", decodeUTF8},
	{"utf-16", decodeUTF16},
	{"latin-1", decodeWith(charmap.ISO8859_1)},
	{"cp1252", decodeWith(charmap.Windows1252)},
}

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// DecodeText decodes a plain text upload. It never fails: when no decoder
// accepts the input it falls back to UTF-8 with invalid bytes dropped.
func DecodeText(data []byte) string {
	text, _ := decodeText(data)
	return text
}

func decodeText(data []byte) (string, string) {
	for _, d := range textDecoders {
		if text, ok := d.decode(data); ok {
			return text, d.name
		}
	}
	return strings.ToValidUTF8(string(data), ""), "utf-8-lossy"
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), true
}

// decodeUTF16 only accepts byte-order-marked input. Without a BOM almost any
// even-length byte string "decodes" as UTF-16, which would shadow latin-1.
func decodeUTF16(data []byte) (string, bool) {
	if len(data)%2 != 0 {
		return "", false
	}
	if !bytes.HasPrefix(data, utf16LEBOM) && !bytes.HasPrefix(data, utf16BEBOM) {
		return "", false
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		return "", false
	}
	// Unpaired surrogates come back as U+FFFD
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func decodeWith(enc encoding.Encoding) func([]byte) (string, bool) {
	return func(data []byte) (string, bool) {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		return string(out), true
	}
}
