package hasher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stumpinator/garnerd/hash"
)

func TestSimpleHashFile(t *testing.T) {
	data := []byte("abc")
	path := writeTempFile(t, data)

	s := NewSimple(DefaultSet())
	report, err := s.HashFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, report.Path)
	assert.Equal(t, int64(3), report.Size)
	md5sum, ok := report.Sum(hash.MD5)
	require.True(t, ok)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", md5sum)
	sha1sum, ok := report.Sum(hash.SHA1)
	require.True(t, ok)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", sha1sum)
	sha256sum, ok := report.Sum(hash.SHA256)
	require.True(t, ok)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sha256sum)
	_, ok = report.Sum(hash.SHA512)
	assert.False(t, ok)
}

func TestSimpleSmallReadBuffer(t *testing.T) {
	// force many read loops
	data := randomData(t, 64*1024)
	path := writeTempFile(t, data)

	s := NewSimple(hash.NewHashSet(hash.SHA1), WithReadBufferSize(512))
	report, err := s.HashFile(path)
	require.NoError(t, err)

	want := sha1.Sum(data)
	got, ok := report.Sum(hash.SHA1)
	require.True(t, ok)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
	assert.Equal(t, int64(len(data)), report.Size)
}

func TestSimpleMissingFile(t *testing.T) {
	s := NewSimple(DefaultSet())
	_, err := s.HashFile("/definitely/not/a/file")
	require.Error(t, err)
}

func TestHashMulti(t *testing.T) {
	paths := []string{
		writeTempFile(t, []byte("one")),
		writeTempFile(t, []byte("two")),
		writeTempFile(t, []byte("three")),
		"/definitely/not/a/file",
	}

	s := NewSimple(hash.NewHashSet(hash.MD5))
	var ok, failed int
	for res := range s.HashMulti(context.Background(), paths, 2) {
		if res.Err != nil {
			failed++
			continue
		}
		ok++
		assert.NotEmpty(t, res.Report.Labels[hash.MD5.String()])
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, failed)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "PNG data, image/png", describe(pngHeader))
	assert.Equal(t, "data", describe([]byte("just some text")))
}
