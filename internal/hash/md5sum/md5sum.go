// Package md5sum provides MD5 hashing utilities.
package md5sum

import (
	"crypto/md5"
	"encoding/hex"
)

// Hasher implements crawler.Hasher using MD5. The digest is used as a
// stable object identifier, not for integrity.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
