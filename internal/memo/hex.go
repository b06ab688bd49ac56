// Package memo derives structured memo rows from raw ledger transactions.
package memo

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// DecodeFunc decodes hex-encoded memo text. Implementations never fail:
// malformed encodings are cosmetic, not structural, and decode to "".
type DecodeFunc func(string) string

// DecodeHex decodes lower-level byte-hex text to UTF-8 text. An optional
// `\x` or `0x` prefix is stripped. Empty, odd-length, non-hex, or
// non-UTF-8 input decodes to the empty string.
func DecodeHex(s string) string {
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, `\x`) {
		s = s[2:]
	} else if strings.HasPrefix(s, "0x") {
		s = s[2:]
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}
