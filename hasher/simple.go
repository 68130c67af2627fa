package hasher

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/stumpinator/garnerd/hash"
)

// Simple hasher defaults, matching the daemon's hashing config.
const DefaultReadBufferSize = 128 * 1024

// DefaultSet returns the hashes computed when the caller does not pick:
// md5, sha1 and sha256.
func DefaultSet() hash.Set {
	return hash.NewHashSet(hash.MD5, hash.SHA1, hash.SHA256)
}

// Simple computes a set of digests over a file in one read loop, with
// no fan-out. It is the reference implementation the pipeline is
// checked against and the cheap path for small files.
type Simple struct {
	set     hash.Set
	bufSize int
}

// SimpleOption configures a Simple hasher.
type SimpleOption func(*Simple)

// WithReadBufferSize sets the size of the reusable read buffer.
func WithReadBufferSize(n int) SimpleOption {
	return func(s *Simple) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// NewSimple returns a Simple hasher for the given set.
func NewSimple(set hash.Set, opts ...SimpleOption) *Simple {
	s := &Simple{
		set:     set.Overlap(hash.Supported()),
		bufSize: DefaultReadBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashFile hashes one file and returns its report.
func (s *Simple) HashFile(path string) (Report, error) {
	mh, err := hash.NewMultiHasherTypes(s.set)
	if err != nil {
		return Report{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("open %q: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	buf := make([]byte, s.bufSize)
	for {
		n, rerr := readFull(f, buf)
		if rerr != nil {
			return Report{}, fmt.Errorf("read %q: %w", path, rerr)
		}
		if n == 0 {
			break
		}
		if _, err = mh.Write(buf[:n]); err != nil {
			return Report{}, err
		}
	}

	report := Report{
		Path:   path,
		Size:   mh.Size(),
		Labels: make(map[string]string, s.set.Count()),
	}
	for t, digest := range mh.Sums() {
		report.Labels[t.String()] = digest
	}
	return report, nil
}

// BatchResult is one file's outcome from HashMulti. Err carries a
// per-file failure; the batch itself keeps going.
type BatchResult struct {
	Path   string
	Report Report
	Err    error
}

// HashMulti hashes many files concurrently with at most workers in
// flight, delivering results as they complete. The returned channel is
// closed when the batch is done or the context is cancelled.
func (s *Simple) HashMulti(ctx context.Context, paths []string, workers int) <-chan BatchResult {
	if workers < 1 {
		workers = 2
	}
	out := make(chan BatchResult)
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	go func() {
		defer close(out)
		for _, path := range paths {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				report, err := s.HashFile(path)
				select {
				case out <- BatchResult{Path: path, Report: report, Err: err}:
				case <-ctx.Done():
				}
			}()
		}
		wg.Wait()
	}()
	return out
}
