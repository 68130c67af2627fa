package hasher

import (
	"context"
	"encoding/hex"
	"fmt"
	gohash "hash"

	"github.com/stumpinator/garnerd/hash"
	"github.com/stumpinator/garnerd/lib/shm"
)

// Consumer is one byte sink plugged into the fan-out. The runtime calls
// Start once, Chunk for every non-terminal chunk in stream order, and
// End after the terminal chunk. The Partial returned by End must report
// the total bytes the consumer observed.
type Consumer interface {
	// Name identifies the consumer in error messages.
	Name() string
	// Start is called before the first chunk.
	Start() error
	// Chunk processes one payload. The slice is a read-only borrow of
	// shared memory and must not be retained.
	Chunk(p []byte) error
	// End is called after the terminal chunk and returns the
	// consumer's contribution to the report.
	End() Partial
}

// runConsumer drives one consumer through the rotating round protocol:
// trip the barrier, snapshot, stop on the terminal chunk, otherwise feed
// the payload and move to the next buffer.
func runConsumer(ctx context.Context, c Consumer, syncs []*bufferSync) (p Partial, err error) {
	bufs := make([]*shm.Buffer, len(syncs))
	defer func() {
		for _, b := range bufs {
			if b != nil {
				_ = b.Close()
			}
		}
	}()
	for i, s := range syncs {
		bufs[i], err = shm.Attach(s.name)
		if err != nil {
			return p, fmt.Errorf("consumer %s: %w", c.Name(), err)
		}
	}

	if err = c.Start(); err != nil {
		return p, fmt.Errorf("consumer %s: start: %w", c.Name(), err)
	}
	for round := 0; ; round++ {
		i := round % len(syncs)
		if err = syncs[i].Wait(ctx, 0); err != nil {
			return p, fmt.Errorf("consumer %s: %w", c.Name(), err)
		}
		snap, serr := bufs[i].Snapshot()
		if serr != nil {
			return p, fmt.Errorf("consumer %s: %w", c.Name(), serr)
		}
		if len(snap) == 0 {
			// terminal chunk
			return c.End(), nil
		}
		if err = c.Chunk(snap); err != nil {
			return p, fmt.Errorf("consumer %s: %w", c.Name(), err)
		}
	}
}

// hashConsumer feeds every chunk into one hash state and reports the
// hex digest under the hash's label.
type hashConsumer struct {
	typ  hash.Type
	h    gohash.Hash
	size int64
}

func newHashConsumer(t hash.Type) *hashConsumer {
	return &hashConsumer{typ: t}
}

func (c *hashConsumer) Name() string {
	return c.typ.String()
}

func (c *hashConsumer) Start() (err error) {
	c.h, err = c.typ.New()
	c.size = 0
	return err
}

func (c *hashConsumer) Chunk(p []byte) error {
	// hash.Hash writers never fail
	_, _ = c.h.Write(p)
	c.size += int64(len(p))
	return nil
}

func (c *hashConsumer) End() Partial {
	return Partial{
		Size: c.size,
		Labels: map[string]string{
			c.typ.String(): hex.EncodeToString(c.h.Sum(nil)),
		},
	}
}
