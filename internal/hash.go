package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SHA256sum returns the hex-encoded SHA-256 of text. The leading-zero
// proof-of-work scheme is defined over this string.
func SHA256sum(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// FastHash is a non-cryptographic fingerprint for log fields, such as telling
// signing keys apart without printing them.
func FastHash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
