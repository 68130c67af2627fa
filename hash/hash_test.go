package hash_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stumpinator/garnerd/hash"
)

// Check it satisfies the interface
var _ pflag.Value = (*hash.Type)(nil)

func TestHashSet(t *testing.T) {
	var h hash.Set

	assert.Equal(t, 0, h.Count())

	a := h.Array()
	assert.Len(t, a, 0)

	h = h.Add(hash.MD5)
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, hash.MD5, h.GetOne())
	a = h.Array()
	assert.Len(t, a, 1)
	assert.Equal(t, a[0], hash.MD5)

	// Test overlap, with all hashes
	h = h.Overlap(hash.Supported())
	assert.Equal(t, 1, h.Count())
	assert.Equal(t, hash.MD5, h.GetOne())
	assert.True(t, h.SubsetOf(hash.Supported()))
	assert.True(t, h.SubsetOf(hash.NewHashSet(hash.MD5)))

	h = h.Add(hash.SHA1)
	assert.Equal(t, 2, h.Count())
	assert.True(t, h.SubsetOf(hash.Supported()))
	assert.False(t, h.SubsetOf(hash.NewHashSet(hash.MD5)))
	assert.False(t, h.SubsetOf(hash.NewHashSet(hash.SHA1)))
	assert.True(t, h.SubsetOf(hash.NewHashSet(hash.MD5, hash.SHA1)))
	a = h.Array()
	assert.Len(t, a, 2)

	ol := h.Overlap(hash.NewHashSet(hash.MD5))
	assert.Equal(t, 1, ol.Count())
	assert.True(t, ol.Contains(hash.MD5))
	assert.False(t, ol.Contains(hash.SHA1))

	ol = h.Overlap(hash.NewHashSet(hash.MD5, hash.SHA1))
	assert.Equal(t, 2, ol.Count())
	assert.True(t, ol.Contains(hash.MD5))
	assert.True(t, ol.Contains(hash.SHA1))
}

type hashTest struct {
	input  []byte
	output map[hash.Type]string
}

var hashTestSet = []hashTest{
	{
		input: []byte("abc"),
		output: map[hash.Type]string{
			hash.MD5:    "900150983cd24fb0d6963f7d28e17f72",
			hash.SHA1:   "a9993e364706816aba3e25717850c26c9cd0d89d",
			hash.SHA224: "23097d223405d8228642a477bda255b32aadbce4bda0b3f7e36c9da7",
			hash.SHA256: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			hash.SHA384: "cb00753f45a35e8bb5a03d699ac65007272c32ab0eded1631a8b605a43ff5bed8086072ba1e7cc2358baeca134c825a7",
			hash.SHA512: "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f",
		},
	},
	// Empty data set
	{
		input: []byte{},
		output: map[hash.Type]string{
			hash.MD5:    "d41d8cd98f00b204e9800998ecf8427e",
			hash.SHA1:   "da39a3ee5e6b4b0d3255bfef95601890afd80709",
			hash.SHA224: "d14a028c2a3a2bc9476102bb288234c415a2b01f828ea62ac5b3e42f",
			hash.SHA256: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			hash.SHA384: "38b060a751ac96384cd9327eb1b1e36a21fdb71114be07434c0cc7bf63f6e1da274edebfe76f65fbd51ad2f14898b95b",
			hash.SHA512: "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
		},
	},
}

func TestMultiHasher(t *testing.T) {
	for _, test := range hashTestSet {
		mh := hash.NewMultiHasher()
		n, err := io.Copy(mh, bytes.NewBuffer(test.input))
		require.NoError(t, err)
		assert.Len(t, test.input, int(n))
		assert.Equal(t, int64(len(test.input)), mh.Size())
		sums := mh.Sums()
		for k, v := range sums {
			expect, ok := test.output[k]
			require.True(t, ok, "test output for hash not found")
			assert.Equal(t, expect, v)
		}
		// Test that all are present
		for k, v := range test.output {
			expect, ok := sums[k]
			require.True(t, ok, "test output for hash not found")
			assert.Equal(t, expect, v)
		}
	}
}

func TestMultiHasherTypes(t *testing.T) {
	h := hash.SHA1
	for _, test := range hashTestSet {
		mh, err := hash.NewMultiHasherTypes(hash.NewHashSet(h))
		require.NoError(t, err)
		n, err := io.Copy(mh, bytes.NewBuffer(test.input))
		require.NoError(t, err)
		assert.Len(t, test.input, int(n))
		sums := mh.Sums()
		assert.Len(t, sums, 1)
		assert.Equal(t, sums[h], test.output[h])
		sum, err := mh.Sum(h)
		require.NoError(t, err)
		assert.Equal(t, test.output[h], sum)
		_, err = mh.Sum(hash.MD5)
		assert.ErrorIs(t, err, hash.ErrUnsupported)
	}
}

func TestMultiHasherEmptySet(t *testing.T) {
	mh, err := hash.NewMultiHasherTypes(hash.NewHashSet())
	require.NoError(t, err)
	n, err := mh.Write([]byte("counted but not hashed"))
	require.NoError(t, err)
	assert.Equal(t, 22, n)
	assert.Equal(t, int64(22), mh.Size())
	assert.Len(t, mh.Sums(), 0)
}

func TestTypeFromString(t *testing.T) {
	for _, test := range []struct {
		label string
		want  hash.Type
	}{
		{"md5", hash.MD5},
		{"MD5", hash.MD5},
		{"sha1", hash.SHA1},
		{"sha224", hash.SHA224},
		{"sha256", hash.SHA256},
		{"sha384", hash.SHA384},
		{"sha512", hash.SHA512},
	} {
		got, err := hash.TypeFromString(test.label)
		require.NoError(t, err)
		assert.Equal(t, test.want, got)
		assert.Equal(t, test.want.String(), got.String())
	}
	_, err := hash.TypeFromString("crc32")
	assert.ErrorIs(t, err, hash.ErrUnsupported)
}

func TestParseSet(t *testing.T) {
	s, dropped := hash.ParseSet([]string{"md5", "sha256", "whirlpool", "bogus"})
	assert.Equal(t, 2, dropped)
	assert.Equal(t, hash.NewHashSet(hash.MD5, hash.SHA256), s)

	s, dropped = hash.ParseSet(nil)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, 0, s.Count())
}

func TestWidth(t *testing.T) {
	for _, typ := range hash.Supported().Array() {
		h, err := typ.New()
		require.NoError(t, err)
		assert.Equal(t, typ.Width(), 2*h.Size(), typ)
	}
}
