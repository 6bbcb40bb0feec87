// Package hashcodec implements the streaming hashing and base conversion
// primitives shared by the rest of mediabackups (spec section 4.1).
package hashcodec

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/uplo-tech/errors"
)

// streamChunkSize is the read buffer size for the streaming digests.
const streamChunkSize = 64 * 1024

// SHA1Stream returns the lowercase, 40-hex-digit, zero-padded SHA-1 digest
// of everything read from r.
func SHA1Stream(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.CopyBuffer(h, r, make([]byte, streamChunkSize)); err != nil {
		return "", errors.AddContext(err, "unable to stream sha1")
	}
	return fmt.Sprintf("%040x", h.Sum(nil)), nil
}

// SHA256Stream returns the lowercase, 64-hex-digit, zero-padded SHA-256
// digest of everything read from r.
func SHA256Stream(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.CopyBuffer(h, r, make([]byte, streamChunkSize)); err != nil {
		return "", errors.AddContext(err, "unable to stream sha256")
	}
	return fmt.Sprintf("%064x", h.Sum(nil)), nil
}

const (
	base36Len = 31
	base16Len = 40
)

var base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Base16ToBase36 converts a lowercase hex string to a 31-character
// lowercase base-36 string, zero-padded on the left.
func Base16ToBase36(hexStr string) (string, error) {
	hexStr = strings.ToLower(strings.TrimSpace(hexStr))
	if hexStr == "" {
		return strings.Repeat("0", base36Len), nil
	}
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		return "", errors.New("hashcodec: invalid hex string")
	}
	s := n.Text(36)
	if len(s) > base36Len {
		s = s[len(s)-base36Len:]
	}
	return leftPad(s, base36Len, '0'), nil
}

// Base36ToBase16 converts a lowercase base-36 string to a 40-character
// lowercase hex string, zero-padded on the left.
func Base36ToBase16(b36 string) (string, error) {
	b36 = strings.ToLower(strings.TrimSpace(b36))
	if b36 == "" {
		return strings.Repeat("0", base16Len), nil
	}
	n, ok := new(big.Int).SetString(b36, 36)
	if !ok {
		return "", errors.New("hashcodec: invalid base36 string")
	}
	s := n.Text(16)
	if len(s) > base16Len {
		s = s[len(s)-base16Len:]
	}
	return leftPad(s, base16Len, '0'), nil
}

func leftPad(s string, length int, pad byte) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(string(pad), length-len(s)) + s
}

// epochPlusOne is the fallback instant MWDateToInstant returns when it
// cannot parse its input. mw_date_to_instant never fails.
var epochPlusOne = time.Unix(1, 0).UTC()

// mwDateLayout is MediaWiki's compact "YYYYMMDDHHMMSS" timestamp format.
const mwDateLayout = "20060102150405"

// MWDateToInstant parses a MediaWiki-format date into an absolute instant.
// On any parse failure it returns 1970-01-01T00:00:01Z rather than an
// error, matching the reference implementation's never-fail contract.
func MWDateToInstant(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(mwDateLayout, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC()
	}
	return epochPlusOne
}

// ParseCLIDate parses a CLI-supplied date in either "YYYY-MM-DD HH:MM:SS"
// or compact "YYYYMMDDHHMMSS" form.
func ParseCLIDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(mwDateLayout, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New("hashcodec: unrecognized date format, want 'YYYY-MM-DD HH:MM:SS' or 'YYYYMMDDHHMMSS'")
}
