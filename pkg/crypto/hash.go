package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrPayloadNotEncodable payload cannot be canonically encoded
	ErrPayloadNotEncodable = errors.New("chain payload is not JSON-encodable")
)

// DigestSize is the length of a hex-encoded chain digest.
const DigestSize = sha256.Size * 2

// ChainDigest computes the SHA-256 digest of the canonical JSON encoding of
// payload and returns it hex-encoded.
//
// Payloads must be fixed-field structs: encoding/json emits struct fields in
// declaration order and sorts map keys, so the digest is reproducible across
// process restarts.
func ChainDigest(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPayloadNotEncodable, err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DigestEqual reports whether two hex digests match. Comparison is
// constant-length aware so a truncated digest never matches.
func DigestEqual(a, b string) bool {
	if len(a) != DigestSize || len(b) != DigestSize {
		return false
	}
	return a == b
}
