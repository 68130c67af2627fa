package hasher

import (
	"context"
	"fmt"
	"time"

	"github.com/marusama/cyclicbarrier"
)

// bufferSync pairs a buffer name with the barrier gating each round on
// that buffer. It is the only thing producer and consumers share; each
// peer attaches to the buffer by name itself.
type bufferSync struct {
	name    string
	barrier cyclicbarrier.CyclicBarrier
	timeout time.Duration
}

// Wait trips the barrier and blocks until every party has arrived or the
// timeout elapses. An explicit timeout takes precedence over the sync's
// default; zero means use the default.
func (s *bufferSync) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := s.barrier.Await(ctx); err != nil {
		return fmt.Errorf("barrier wait on buffer %q: %w", s.name, err)
	}
	return nil
}
