package sessiontoken

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// HashRefreshToken returns the SHA-256 hex digest of a refresh credential.
// Verifiers compare against this form so stores never hold credentials in plaintext.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// toMillis converts t to milliseconds since the Unix epoch.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts milliseconds since the Unix epoch to a time.Time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// marshalJSON encodes v like json.Marshal but leaves &, < and > unescaped,
// matching JSON.stringify.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

const upperHex = "0123456789ABCDEF"

// encodeURIComponent percent-encodes every byte of s outside
// A-Z a-z 0-9 - _ . ! ~ * ' ( ). Spaces become %20.
func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if uriUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func uriUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
