// Package digest holds the hashing primitives every integrity check in the
// system reduces to: SHA-256 content addresses and HMAC-SHA256 signatures,
// both rendered as lowercase hex.
package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
)

// SHA256 returns the lowercase hex SHA-256 of b.
func SHA256(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256Text returns the lowercase hex SHA-256 of the UTF-8 bytes of s.
func SHA256Text(s string) string {
	return SHA256([]byte(s))
}

// SHA256Reader streams r through SHA-256 and returns the lowercase hex
// digest and the number of bytes read.
func SHA256Reader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HMACSHA256 returns the lowercase hex HMAC-SHA256 of message under key.
func HMACSHA256(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC recomputes the HMAC of message under key and compares it to
// signature (lowercase hex) in constant time.
func VerifyHMAC(key, message []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), want)
}

// EqualHex compares two lowercase hex digests in constant time. Returns
// false for malformed input.
func EqualHex(a, b string) bool {
	ab, err := hex.DecodeString(a)
	if err != nil {
		return false
	}
	bb, err := hex.DecodeString(b)
	if err != nil {
		return false
	}
	if len(ab) != len(bb) {
		return false
	}
	return subtle.ConstantTimeCompare(ab, bb) == 1
}
