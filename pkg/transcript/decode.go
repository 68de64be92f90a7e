package transcript

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode converts transcript bytes to UTF-8. An empty charset means detect:
// valid UTF-8 passes through and anything else is read as Latin-1.
func Decode(data []byte, charset string) ([]byte, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))

	var decoder transform.Transformer
	switch charset {
	case "", "auto":
		data = bytes.TrimPrefix(data, utf8BOM)
		if utf8.Valid(data) {
			return data, nil
		}
		decoder = charmap.ISO8859_1.NewDecoder()
	case "utf-8", "utf8", "us-ascii":
		return bytes.TrimPrefix(data, utf8BOM), nil
	case "iso-8859-1", "latin1", "iso_8859-1":
		decoder = charmap.ISO8859_1.NewDecoder()
	case "iso-8859-15", "latin9":
		decoder = charmap.ISO8859_15.NewDecoder()
	case "windows-1252", "cp1252":
		decoder = charmap.Windows1252.NewDecoder()
	default:
		return data, fmt.Errorf("unknown charset: %s", charset)
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), decoder))
	if err != nil {
		return data, fmt.Errorf("charset decoding failed: %w", err)
	}
	return out, nil
}

// Parse reads a transcript in the given format ("vtt" or "txt").
func Parse(r io.Reader, format, charset string) (*Transcript, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	data, err := Decode(raw, charset)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "vtt":
		return ParseVTT(bytes.NewReader(data))
	case "txt", "":
		return ParseTXT(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported transcript format: %s", format)
	}
}

// ParseFile parses a transcript, choosing the format from the extension or,
// failing that, from a WEBVTT header.
func ParseFile(path, charset string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return Parse(bytes.NewReader(data), DetectFormat(path, data), charset)
}

// DetectFormat guesses "vtt" or "txt".
func DetectFormat(path string, head []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return "vtt"
	case ".txt":
		return "txt"
	}
	if bytes.HasPrefix(bytes.TrimPrefix(head, utf8BOM), []byte("WEBVTT")) {
		return "vtt"
	}
	return "txt"
}
