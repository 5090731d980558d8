package fetcher

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// fixEncoding repairs text from feeds that serve UTF-8 or GBK bytes under a
// latin-1 content type. Such text parses into one rune per original byte, all
// below 0x100. Reassembling those bytes and decoding them as UTF-8, then GBK,
// recovers the intended characters. Text that does not fit the mojibake shape
// comes back unchanged.
func fixEncoding(s string) string {
	raw := make([]byte, 0, len(s))
	ascii := true
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		if r >= 0x80 {
			ascii = false
		}
		raw = append(raw, byte(r))
	}
	if ascii {
		return s
	}

	if utf8.Valid(raw) {
		return string(raw)
	}

	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err == nil && validDecoded(decoded) {
		return string(decoded)
	}
	return s
}

// validDecoded rejects decoder output containing the replacement character,
// which the GBK decoder substitutes for bytes it cannot map.
func validDecoded(b []byte) bool {
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError {
			return false
		}
		b = b[size:]
	}
	return true
}
