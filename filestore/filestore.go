// Package filestore implements a content-addressed, hash-sharded
// directory store on a local filesystem.
//
// A file is addressed by a hex identifier and its byte count. The first
// depth characters of the identifier pick the directory shard, the rest
// plus an encoded size form the leaf name, so the (identifier, size)
// pair is recoverable from the path alone. Concurrent writers are
// mediated only through per-destination advisory lock files.
package filestore

import (
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/stumpinator/garnerd/lib/basex"
	"github.com/stumpinator/garnerd/lib/diskusage"
)

// Errors returned by the store.
var (
	ErrInvalidFile      = errors.New("source path is not a valid file")
	ErrInvalidDirectory = errors.New("destination directory does not exist")
	ErrInvalidFileSize  = errors.New("invalid file size")
	ErrInvalidPath      = errors.New("invalid path key")
)

const hexChars = "0123456789abcdef"

// Default policy values.
const (
	DefaultDepth       = 4
	DefaultMaxFiles    = 999999999
	DefaultMinFree     = 20.0
	DefaultMaxFileSize = 128 * 1024 * 1024 * 1024
)

// Encoder turns a non-negative size into the leaf name extension.
type Encoder func(int64) (string, error)

// Store places files in a sharded directory tree under one root.
type Store struct {
	root         string
	depth        int
	maxFiles     int64
	minFree      float64
	minFreeBytes uint64
	maxFileSize  int64
	encode       Encoder
	dirMode      os.FileMode
	fileMode     os.FileMode
	stored       atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithDepth sets the number of directory shard levels.
func WithDepth(depth int) Option {
	return func(s *Store) { s.depth = depth }
}

// WithMaxFiles caps how many files the store will admit.
func WithMaxFiles(n int64) Option {
	return func(s *Store) { s.maxFiles = n }
}

// WithMinFree sets the minimum free-space percentage kept on the
// filesystem. Values outside [0, 100) fall back to 5%.
func WithMinFree(percent float64) Option {
	return func(s *Store) { s.minFree = percent }
}

// WithMaxFileSize caps the size of a single stored file.
func WithMaxFileSize(n int64) Option {
	return func(s *Store) { s.maxFileSize = n }
}

// WithEncoder replaces the size encoding used for leaf extensions.
func WithEncoder(enc Encoder) Option {
	return func(s *Store) { s.encode = enc }
}

// New creates a Store rooted at root. The root must be on the
// filesystem the files will live on; free-space policy is derived from
// its total size at construction time.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("store root must not be empty")
	}
	s := &Store{
		root:        root,
		depth:       DefaultDepth,
		maxFiles:    DefaultMaxFiles,
		minFree:     DefaultMinFree,
		maxFileSize: DefaultMaxFileSize,
		encode:      basex.Std.Encode,
		dirMode:     0o740,
		fileMode:    0o440,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.depth < 1 {
		return nil, fmt.Errorf("directory depth must be >= 1, got %d", s.depth)
	}
	if s.minFree < 0 || s.minFree >= 100 {
		s.minFree = 5.0
	}
	info, err := diskusage.New(root)
	switch {
	case err == nil:
		s.minFreeBytes = uint64(s.minFree / 100 * float64(info.Total))
	case errors.Is(err, diskusage.ErrUnsupported):
		// no free-space admission on this platform
		s.minFreeBytes = 0
	default:
		return nil, fmt.Errorf("stat filesystem of %q: %w", root, err)
	}
	return s, nil
}

// Root returns the store's root path.
func (s *Store) Root() string {
	return s.root
}

// Depth returns the number of directory shard levels.
func (s *Store) Depth() int {
	return s.depth
}

// FilePath derives the destination path for the identifier and size.
// The key must be a hex string strictly longer than the store depth; the
// size must be >= 0. FilePath is pure: equal inputs give equal paths.
func (s *Store) FilePath(key string, size int64) (string, error) {
	if size < 0 {
		return "", fmt.Errorf("%w: must be >= 0, got %d", ErrInvalidFileSize, size)
	}
	key = strings.ToLower(key)
	if key == "" {
		return "", errors.New("path key must be a hex string")
	}
	for i := 0; i < len(key); i++ {
		if !strings.ContainsRune(hexChars, rune(key[i])) {
			return "", fmt.Errorf("path key must be a hex string, got %q", key)
		}
	}
	if len(key) <= s.depth {
		return "", fmt.Errorf("%w: length must be greater than %d", ErrInvalidPath, s.depth)
	}
	ext, err := s.encode(size)
	if err != nil || ext == "" {
		return "", fmt.Errorf("%w: size encoding failed for %d", ErrInvalidFileSize, size)
	}
	parts := make([]string, 0, s.depth+2)
	parts = append(parts, s.root)
	for i := 0; i < s.depth; i++ {
		parts = append(parts, key[i:i+1])
	}
	parts = append(parts, key[s.depth:]+"."+ext)
	return filepath.Join(parts...), nil
}

// HasFile reports whether the file for (key, size) exists in the store.
func (s *Store) HasFile(key string, size int64) (bool, error) {
	path, err := s.FilePath(key, size)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

// SubDirs iterates over every leaf directory of the store, 16^depth in
// total, in lexical order.
func (s *Store) SubDirs() iter.Seq[string] {
	return func(yield func(string) bool) {
		s.walkSubDirs(s.root, 1, yield)
	}
}

func (s *Store) walkSubDirs(base string, depth int, yield func(string) bool) bool {
	for i := 0; i < len(hexChars); i++ {
		dir := filepath.Join(base, hexChars[i:i+1])
		if depth == s.depth {
			if !yield(dir) {
				return false
			}
		} else if !s.walkSubDirs(dir, depth+1, yield) {
			return false
		}
	}
	return true
}

// Init creates every leaf directory the store can place a file in and
// counts files already present, seeding the stored counter. It returns
// the number of directories created and the number of files found.
func (s *Store) Init() (created int, found int64, err error) {
	for dir := range s.SubDirs() {
		_, statErr := os.Stat(dir)
		switch {
		case statErr == nil:
			continue
		case !os.IsNotExist(statErr):
			return created, 0, fmt.Errorf("stat %q: %w", dir, statErr)
		}
		if err = os.MkdirAll(dir, s.dirMode); err != nil {
			return created, 0, fmt.Errorf("create %q: %w", dir, err)
		}
		created++
	}
	found, err = s.CountStored()
	if err != nil {
		return created, 0, err
	}
	s.stored.Store(found)
	logrus.WithFields(logrus.Fields{
		"root":    s.root,
		"created": created,
		"found":   found,
	}).Debug("store initialized")
	return created, found, nil
}

// CountStored walks every leaf directory and counts stored files,
// excluding lock files. Leaves which do not exist count as empty.
func (s *Store) CountStored() (int64, error) {
	var count int64
	for dir := range s.SubDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("read %q: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".lock") {
				continue
			}
			count++
		}
	}
	return count, nil
}

// FilesStored returns the stored-file counter. The counter is an
// admission hint; layout correctness never depends on it.
func (s *Store) FilesStored() int64 {
	return s.stored.Load()
}

// FreeBytes returns the free bytes on the store's filesystem.
func (s *Store) FreeBytes() (uint64, error) {
	info, err := diskusage.New(s.root)
	if err != nil {
		return 0, err
	}
	return info.Free, nil
}

// FreeFraction returns the free share of the store's filesystem as a
// percentage.
func (s *Store) FreeFraction() (float64, error) {
	info, err := diskusage.New(s.root)
	if err != nil {
		return 0, err
	}
	if info.Total == 0 {
		return 0, nil
	}
	return float64(info.Free) / float64(info.Total) * 100, nil
}

// CanStore reports whether a file of the given size passes admission:
// enough free space, file count under the cap, size under the limit.
func (s *Store) CanStore(size int64) bool {
	if size < 0 {
		return false
	}
	if s.minFreeBytes > 0 {
		free, err := s.FreeBytes()
		if err != nil || free < s.minFreeBytes {
			return false
		}
	}
	if s.stored.Load() >= s.maxFiles {
		return false
	}
	return size <= s.maxFileSize
}

// AddFile moves source into the store under (key, size). A destination
// that already exists deduplicates: the source is deleted and the call
// succeeds. Returns true if the file exists in the store afterwards,
// whether or not this call placed it.
//
// The per-destination lock makes the commit at-most-once under
// concurrent ingests of the same identifier. Rename keeps the commit
// atomic; the source must be on the store's filesystem.
func (s *Store) AddFile(source, key string, size int64) (bool, error) {
	fi, err := os.Stat(source)
	if err != nil || !fi.Mode().IsRegular() {
		return false, fmt.Errorf("%w: %q", ErrInvalidFile, source)
	}
	dst, err := s.FilePath(key, size)
	if err != nil {
		return false, err
	}
	// the lock file lives next to the destination, so the shard
	// directory must exist before the lock can be taken
	parent := filepath.Dir(dst)
	if pfi, perr := os.Stat(parent); perr != nil || !pfi.IsDir() {
		return false, fmt.Errorf("%w: %q (store not initialized?)", ErrInvalidDirectory, parent)
	}
	lock := flock.New(dst + ".lock")
	if err = lock.Lock(); err != nil {
		return false, fmt.Errorf("lock %q: %w", dst, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if _, err = os.Stat(dst); err == nil {
		// duplicate: the store already holds this content
		if err = os.Remove(source); err != nil {
			return true, fmt.Errorf("remove duplicate source %q: %w", source, err)
		}
		logrus.WithField("path", dst).Debug("duplicate ingest deduplicated")
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %q: %w", dst, err)
	}

	if err = os.Rename(source, dst); err != nil {
		return false, fmt.Errorf("rename %q to %q: %w", source, dst, err)
	}
	if err = os.Chmod(dst, s.fileMode); err != nil {
		return true, fmt.Errorf("chmod %q: %w", dst, err)
	}
	s.stored.Add(1)
	logrus.WithFields(logrus.Fields{"path": dst, "size": size}).Debug("file stored")
	return true, nil
}

// RemoveFile deletes the file for (key, size) if present. Returns true
// if the file does not exist afterwards, whether or not this call
// removed it; it is idempotent.
func (s *Store) RemoveFile(key string, size int64) (bool, error) {
	path, err := s.FilePath(key, size)
	if err != nil {
		return false, err
	}
	// an absent shard directory means the file cannot exist
	if _, err = os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		return true, nil
	}
	lock := flock.New(path + ".lock")
	if err = lock.Lock(); err != nil {
		return false, fmt.Errorf("lock %q: %w", path, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	fi, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return true, nil
	case err != nil:
		return false, err
	}
	if !fi.Mode().IsRegular() {
		return false, nil
	}
	if err = os.Remove(path); err != nil {
		return false, fmt.Errorf("remove %q: %w", path, err)
	}
	s.stored.Add(-1)
	logrus.WithField("path", path).Debug("file removed")
	return true, nil
}
