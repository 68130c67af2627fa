// Package basex encodes non-negative integers as compact strings over a
// fixed alphabet. The store uses it to turn a file size into a short
// extension so the (identifier, size) pair is recoverable from the path.
package basex

import (
	"errors"
	"fmt"
	"strings"
)

// StoreAlphabet is the alphabet used for file size extensions: base-32
// over digits and lower-case a-v.
const StoreAlphabet = "0123456789abcdefghijklmnopqrstuv"

var (
	// ErrNegative is returned when asked to encode a negative value.
	ErrNegative = errors.New("value must be >= 0")
	// ErrEmpty is returned when asked to decode an empty string.
	ErrEmpty = errors.New("empty string")
)

// Codec encodes and decodes integers over one alphabet.
type Codec struct {
	alphabet string
	index    map[byte]int64
}

// New creates a Codec for the given alphabet. The alphabet must have at
// least two distinct characters.
func New(alphabet string) (*Codec, error) {
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("alphabet must have at least 2 characters, got %d", len(alphabet))
	}
	index := make(map[byte]int64, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		c := alphabet[i]
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("alphabet has duplicate character %q", c)
		}
		index[c] = int64(i)
	}
	return &Codec{alphabet: alphabet, index: index}, nil
}

// MustNew is like New but panics on error. For package-level codecs with
// known-good alphabets.
func MustNew(alphabet string) *Codec {
	c, err := New(alphabet)
	if err != nil {
		panic(err)
	}
	return c
}

// Std is the store's default codec over StoreAlphabet.
var Std = MustNew(StoreAlphabet)

// Encode returns the representation of n by repeated division, most
// significant digit first. Encode(0) is the alphabet's zero character.
func (c *Codec) Encode(n int64) (string, error) {
	if n < 0 {
		return "", ErrNegative
	}
	base := int64(len(c.alphabet))
	if n < base {
		return string(c.alphabet[n]), nil
	}
	var b strings.Builder
	var digits [64]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = c.alphabet[n%base]
		n /= base
	}
	b.Write(digits[i:])
	return b.String(), nil
}

// Decode inverts Encode. It rejects characters outside the alphabet and
// non-canonical forms (a leading zero digit on a multi-digit string), so
// Encode(Decode(s)) == s holds for every accepted s.
func (c *Codec) Decode(s string) (int64, error) {
	if s == "" {
		return 0, ErrEmpty
	}
	if len(s) > 1 && s[0] == c.alphabet[0] {
		return 0, fmt.Errorf("non-canonical form %q: leading zero digit", s)
	}
	base := int64(len(c.alphabet))
	var n int64
	for i := 0; i < len(s); i++ {
		v, ok := c.index[s[i]]
		if !ok {
			return 0, fmt.Errorf("character %q not in alphabet", s[i])
		}
		n = n*base + v
	}
	return n, nil
}
