package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
// Matches the digest format of manifest records.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256HexReader returns the SHA-256 checksum of everything read from r.
func SHA256HexReader(r io.Reader) string {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		panic(err)
	}
	return hex.EncodeToString(h.Sum(nil))
}
