// Package textutil converts raw subprocess output into printable text.
//
// External encoders write diagnostics in whatever encoding the host console
// uses; log lines and error messages must not end up with mojibake, so bytes
// that are not valid UTF-8 are re-decoded with the platform's conventional
// single-byte encoding as a fallback.
package textutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeConsole interprets raw console output from an external process.
// Valid UTF-8 passes through untouched; anything else is decoded as the
// platform's legacy code page (Windows-1252 covers the common cases) so no
// byte sequence is ever dropped.
func DecodeConsole(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) {
		return strings.TrimSpace(string(raw))
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		// Windows-1252 maps every byte; this is unreachable in practice.
		return strings.TrimSpace(strings.ToValidUTF8(string(raw), "�"))
	}
	return strings.TrimSpace(string(decoded))
}
