// Package fingerprint derives fixed-length hexadecimal digests from URLs.
// Hashers are stateless and safe for concurrent use.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/twmb/murmur3"
)

// Size is the length in characters of every digest produced by this package.
const Size = 32

// Algorithm names a digest function.
type Algorithm string

const (
	MD5     Algorithm = "md5"
	Murmur3 Algorithm = "murmur3"
)

// Hasher computes a digest of a URL.
// Implementations must be deterministic and return Size lowercase hex characters.
type Hasher interface {
	Digest(url string) string
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(url string) string

func (f HasherFunc) Digest(url string) string { return f(url) }

// New returns the Hasher for alg. An empty algorithm selects MD5.
func New(alg Algorithm) (Hasher, error) {
	switch alg {
	case MD5, "":
		return HasherFunc(md5Digest), nil
	case Murmur3:
		return HasherFunc(murmur3Digest), nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", alg)
	}
}

// Digest returns the default (MD5) digest of url.
func Digest(url string) string {
	return md5Digest(url)
}

func md5Digest(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func murmur3Digest(url string) string {
	h1, h2 := murmur3.Sum128([]byte(url))
	return fmt.Sprintf("%016x%016x", h1, h2)
}
