// Package hasher computes file metadata (digests, content type, size)
// in a single pass over the bytes.
//
// Two renditions share the Report type: Simple reads the file itself and
// feeds every hash in one loop, while Pipeline fans each chunk out
// through named shared-memory buffers to a set of peer consumers running
// in lock-step behind per-buffer barriers.
package hasher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marusama/cyclicbarrier"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stumpinator/garnerd/hash"
	"github.com/stumpinator/garnerd/lib/shm"
)

// Pipeline defaults.
const (
	DefaultBufferCount = 2
	DefaultTimeout     = 30 * time.Second
)

// ErrByteCountMismatch is returned when a consumer saw a different
// number of bytes than the reader produced.
var ErrByteCountMismatch = errors.New("a hash worker did not get expected number of bytes")

// Pipeline owns a pool of shared fan-out buffers and runs the
// produce/fan-out protocol over them. It is the sole creator of its
// buffers; Close must be called to release their names.
type Pipeline struct {
	mu      sync.Mutex
	bufs    []*shm.Buffer
	timeout time.Duration
	closed  bool
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	count    int
	capacity int
	timeout  time.Duration
}

// WithBufferCount sets the pool size. A pool needs at least two buffers
// so the reader can fill one while consumers drain another; smaller
// values are raised to two.
func WithBufferCount(n int) PipelineOption {
	return func(c *pipelineConfig) { c.count = n }
}

// WithBufferCapacity sets the payload capacity of each buffer.
func WithBufferCapacity(bytes int) PipelineOption {
	return func(c *pipelineConfig) { c.capacity = bytes }
}

// WithTimeout sets the default barrier timeout. A peer that does not
// reach the barrier within it aborts the whole run.
func WithTimeout(d time.Duration) PipelineOption {
	return func(c *pipelineConfig) { c.timeout = d }
}

// NewPipeline allocates the buffer pool. The caller must Close the
// pipeline to unlink the shared regions, on failure paths included.
func NewPipeline(opts ...PipelineOption) (*Pipeline, error) {
	cfg := pipelineConfig{
		count:    DefaultBufferCount,
		capacity: shm.DefaultCapacity,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.count < 2 {
		cfg.count = 2
	}
	p := &Pipeline{timeout: cfg.timeout}
	for i := 0; i < cfg.count; i++ {
		b, err := shm.Create("", cfg.capacity)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.bufs = append(p.bufs, b)
	}
	return p, nil
}

// BufferNames returns the names of the pool's shared regions.
func (p *Pipeline) BufferNames() []string {
	names := make([]string, len(p.bufs))
	for i, b := range p.bufs {
		names[i] = b.Name()
	}
	return names
}

// Close tears down the buffer pool: every buffer is closed, then
// unlinked. Idempotent; after Close no region created by the pipeline
// remains registered in the host.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for _, b := range p.bufs {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := b.Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HashFile streams the file through the fan-out once and returns the
// merged metadata report: size and path from the reader, one hex digest
// per requested hash, and content classification when asked for.
//
// Requested hashes outside the supported set have been dropped by this
// point (hash.ParseSet discards unknown labels); an empty consumer set
// still runs the reader and yields a size-only report.
func (p *Pipeline) HashFile(ctx context.Context, path string, set hash.Set, magic, mime bool) (Report, error) {
	var consumers []Consumer
	for _, t := range set.Overlap(hash.Supported()).Array() {
		consumers = append(consumers, newHashConsumer(t))
	}
	if magic || mime {
		consumers = append(consumers, newClassifyConsumer(magic, mime))
	}
	return p.Run(ctx, path, consumers...)
}

// Run streams the file through the fan-out to an arbitrary set of
// consumers. This is the extension point: anything satisfying Consumer
// can be plugged into the pool.
func (p *Pipeline) Run(ctx context.Context, path string, consumers ...Consumer) (Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Report{}, errors.New("pipeline is closed")
	}

	// one barrier per buffer; every round on a buffer is gated by one
	// trip of all parties
	parties := 1 + len(consumers)
	syncs := make([]*bufferSync, len(p.bufs))
	for i, b := range p.bufs {
		syncs[i] = &bufferSync{
			name:    b.Name(),
			barrier: cyclicbarrier.New(parties),
			timeout: p.timeout,
		}
	}

	logrus.WithFields(logrus.Fields{
		"path":      path,
		"consumers": len(consumers),
		"buffers":   len(p.bufs),
	}).Debug("pipeline run starting")

	reader := &fileReader{path: path, syncs: syncs}
	var readerRes readerResult
	partials := make([]*Partial, len(consumers))

	// every peer runs to completion before the first error is raised,
	// so no round is left with the barrier under-subscribed
	g := &errgroup.Group{}
	g.Go(func() error {
		res, err := reader.run(ctx)
		readerRes = res
		return err
	})
	for i, c := range consumers {
		g.Go(func() error {
			partial, err := runConsumer(ctx, c, syncs)
			if err != nil {
				return err
			}
			partials[i] = &partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Path: readerRes.path, Size: readerRes.size}
	for i, partial := range partials {
		if partial == nil {
			return Report{}, fmt.Errorf("consumer %s returned no report", consumers[i].Name())
		}
		if partial.Size != readerRes.size {
			return Report{}, fmt.Errorf("%w: %s saw %d of %d",
				ErrByteCountMismatch, consumers[i].Name(), partial.Size, readerRes.size)
		}
		report.merge(*partial)
	}
	return report, nil
}
