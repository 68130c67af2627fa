// Package hash provides the closed set of hash algorithms the ingestion
// engine can compute, a bitmask Set over them, and a MultiHasher which
// computes several digests in one pass over the data.
package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	gohash "hash"
	"io"
	"strings"
)

// Type indicates one of the supported hash algorithms.
type Type int

const (
	// None indicates no hashes are supported
	None Type = 0

	// MD5 indicates MD5 support
	MD5 Type = 1 << iota

	// SHA1 indicates SHA-1 support
	SHA1

	// SHA224 indicates SHA-224 support
	SHA224

	// SHA256 indicates SHA-256 support
	SHA256

	// SHA384 indicates SHA-384 support
	SHA384

	// SHA512 indicates SHA-512 support
	SHA512
)

// ErrUnsupported is returned when a hash type outside the supported
// set is requested.
var ErrUnsupported = errors.New("hash type not supported")

// all supported types, ascending
var supported = []Type{MD5, SHA1, SHA224, SHA256, SHA384, SHA512}

var names = map[Type]string{
	MD5:    "md5",
	SHA1:   "sha1",
	SHA224: "sha224",
	SHA256: "sha256",
	SHA384: "sha384",
	SHA512: "sha512",
}

// Supported returns a set of all the supported hashes.
func Supported() Set {
	var s Set
	for _, t := range supported {
		s = s.Add(t)
	}
	return s
}

// Width returns the width in hex characters of the digest for the type.
func (h Type) Width() int {
	switch h {
	case MD5:
		return 32
	case SHA1:
		return 40
	case SHA224:
		return 56
	case SHA256:
		return 64
	case SHA384:
		return 96
	case SHA512:
		return 128
	}
	return 0
}

// New constructs fresh hash state for the type. This is the single
// dispatch point from Type to implementation.
func (h Type) New() (gohash.Hash, error) {
	switch h {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA224:
		return sha256.New224(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, ErrUnsupported
}

// String returns a string representation of the hash type.
func (h Type) String() string {
	if h == None {
		return "none"
	}
	if name, ok := names[h]; ok {
		return name
	}
	return fmt.Sprintf("unknown-%d", int(h))
}

// Set sets the hash type from the string given, for use as a pflag.Value.
func (h *Type) Set(s string) error {
	t, err := TypeFromString(s)
	if err != nil {
		return err
	}
	*h = t
	return nil
}

// Type of the value for pflag.Value.
func (h Type) Type() string {
	return "string"
}

// TypeFromString parses a hash label ("md5", "sha256", ...) into a Type.
// Unknown labels return ErrUnsupported.
func TypeFromString(s string) (Type, error) {
	for t, name := range names {
		if name == strings.ToLower(s) {
			return t, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Set is a bitmask of hash types.
type Set int

// NewHashSet returns a new set with the hash types passed in.
func NewHashSet(hashes ...Type) Set {
	var s Set
	return s.Add(hashes...)
}

// ParseSet parses a list of hash labels into a Set, silently dropping
// labels which are not supported and reporting how many were dropped.
func ParseSet(labels []string) (s Set, dropped int) {
	for _, label := range labels {
		t, err := TypeFromString(label)
		if err != nil {
			dropped++
			continue
		}
		s = s.Add(t)
	}
	return s, dropped
}

// Add adds hash types to the set and returns the new set.
func (s Set) Add(hashes ...Type) Set {
	for _, h := range hashes {
		s |= Set(h)
	}
	return s
}

// Contains returns true if the set contains all the given hash types.
func (s Set) Contains(hashes ...Type) bool {
	for _, h := range hashes {
		if s&Set(h) == 0 {
			return false
		}
	}
	return true
}

// Overlap returns the intersection of the two sets.
func (s Set) Overlap(t Set) Set {
	return s & t
}

// SubsetOf returns true if all types of s are in t.
func (s Set) SubsetOf(t Set) bool {
	return s|t == t
}

// GetOne returns one of the hash types of the set, preferring the
// strongest, or None if the set is empty.
func (s Set) GetOne() Type {
	a := s.Array()
	if len(a) == 0 {
		return None
	}
	return a[len(a)-1]
}

// Array returns the hash types in the set, ascending.
func (s Set) Array() (a []Type) {
	for _, t := range supported {
		if s.Contains(t) {
			a = append(a, t)
		}
	}
	return a
}

// Count returns the number of hash types in the set.
func (s Set) Count() int {
	return len(s.Array())
}

// String returns a comma separated list of hash names.
func (s Set) String() string {
	a := s.Array()
	names := make([]string, len(a))
	for i, t := range a {
		names[i] = t.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// A MultiHasher computes every hash in a set in one pass over the bytes
// written to it.
type MultiHasher struct {
	io.Writer
	size int64
	h    map[Type]gohash.Hash
}

// NewMultiHasher returns a hasher for all supported hash types.
func NewMultiHasher() *MultiHasher {
	h, err := NewMultiHasherTypes(Supported())
	if err != nil {
		panic("internal error: could not create multihasher")
	}
	return h
}

// NewMultiHasherTypes returns a hasher for the given set of hash types.
func NewMultiHasherTypes(set Set) (*MultiHasher, error) {
	hashers := make(map[Type]gohash.Hash)
	writers := make([]io.Writer, 0, set.Count())
	for _, t := range set.Array() {
		h, err := t.New()
		if err != nil {
			return nil, err
		}
		hashers[t] = h
		writers = append(writers, h)
	}
	m := &MultiHasher{h: hashers}
	if len(writers) == 0 {
		m.Writer = io.Discard
	} else {
		m.Writer = io.MultiWriter(writers...)
	}
	return m, nil
}

// Write writes b to every hash in the set.
func (m *MultiHasher) Write(b []byte) (n int, err error) {
	n, err = m.Writer.Write(b)
	m.size += int64(n)
	return n, err
}

// Sums returns the hex digests of all the computed hashes.
func (m *MultiHasher) Sums() map[Type]string {
	dst := make(map[Type]string, len(m.h))
	for t, h := range m.h {
		dst[t] = hex.EncodeToString(h.Sum(nil))
	}
	return dst
}

// Sum returns the hex digest for just one hash type, which must be in
// the hasher's set.
func (m *MultiHasher) Sum(t Type) (string, error) {
	h, ok := m.h[t]
	if !ok {
		return "", ErrUnsupported
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Size returns the number of bytes written.
func (m *MultiHasher) Size() int64 {
	return m.size
}
