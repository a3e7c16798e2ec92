package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for an algorithm migration.
const (
	DomainEntry  = "mementer/entry/v1"
	DomainAction = "mementer/action/v1"
)

// Hash is a content address: lowercase hex SHA-256 with domain separation.
// Hex is fixed width, so comparing two Hash strings byte-wise orders them the
// same way as their digests.
type Hash string

// String implements fmt.Stringer.
func (h Hash) String() string { return string(h) }

// Short returns an abbreviated form for logs and text output.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// IsZero reports whether h is empty.
func (h Hash) IsZero() bool { return h == "" }

// ParseHash validates a full-length hex hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != hex.EncodedLen(sha256.Size) {
		return "", fmt.Errorf("hash %q: want %d hex characters, got %d", s, hex.EncodedLen(sha256.Size), len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("hash %q: invalid character %q at %d", s, c, i)
		}
	}
	return Hash(s), nil
}

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashEntry returns the content address of serialized entry bytes. Identical
// bytes always yield an identical hash.
func HashEntry(data []byte) Hash {
	return hashWithDomain(DomainEntry, data)
}
