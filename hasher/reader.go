package hasher

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/stumpinator/garnerd/lib/shm"
)

// fileReader is the producer peer: it reads the source file in chunks,
// fills the pool buffers round-robin and publishes each chunk length
// through the in-band header before tripping the round's barrier.
type fileReader struct {
	path  string
	syncs []*bufferSync
}

type readerResult struct {
	path string
	size int64
}

// run reads the whole file through the pool. It always finishes the
// stream with a zero-length terminal chunk if it can, so consumers do
// not hang waiting for a round that never comes; a consumer that died
// anyway is caught by the barrier timeout.
func (r *fileReader) run(ctx context.Context) (res readerResult, err error) {
	res.path = r.path

	bufs := make([]*shm.Buffer, len(r.syncs))
	defer func() {
		for _, b := range bufs {
			if b != nil {
				_ = b.Close()
			}
		}
	}()
	for i, s := range r.syncs {
		bufs[i], err = shm.Attach(s.name)
		if err != nil {
			return res, fmt.Errorf("reader: %w", err)
		}
	}

	f, err := os.Open(r.path)
	if err != nil {
		r.terminate(ctx, bufs, 0)
		return res, fmt.Errorf("reader: open %q: %w", r.path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("reader: close %q: %w", r.path, cerr)
		}
	}()

	scratch := make([]byte, bufs[0].Cap())
	for round := 0; ; round++ {
		i := round % len(bufs)
		n, rerr := readFull(f, scratch)
		if rerr != nil {
			r.terminate(ctx, bufs, i)
			return res, fmt.Errorf("reader: read %q: %w", r.path, rerr)
		}
		written, werr := bufs[i].Write(scratch[:n])
		if werr != nil {
			return res, fmt.Errorf("reader: %w", werr)
		}
		if written != n {
			// a short write means the chunk was truncated; consumers
			// would silently hash a partial stream
			r.terminate(ctx, bufs, i)
			return res, fmt.Errorf("reader: chunk truncated: wrote %d of %d bytes to %q", written, n, bufs[i].Name())
		}
		if err = r.syncs[i].Wait(ctx, 0); err != nil {
			return res, fmt.Errorf("reader: %w", err)
		}
		if n == 0 {
			// terminal chunk published and observed
			return res, nil
		}
		res.size += int64(n)
	}
}

// terminate publishes a zero-length terminal chunk on the next buffer in
// rotation so consumers drain instead of deadlocking. Best effort: the
// run is already failing.
func (r *fileReader) terminate(ctx context.Context, bufs []*shm.Buffer, i int) {
	if _, err := bufs[i].Write(nil); err != nil {
		return
	}
	_ = r.syncs[i].Wait(ctx, 0)
}

// readFull reads up to len(p) bytes, stopping early only at EOF. A
// return of 0 bytes with no error means end of stream.
func readFull(f *os.File, p []byte) (n int, err error) {
	for n < len(p) {
		nn, rerr := f.Read(p[n:])
		n += nn
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
	return n, nil
}
