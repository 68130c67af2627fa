// Package shm implements the named shared-memory buffer the hashing
// pipeline fans chunks out through.
//
// A buffer is a file-backed region of 8+capacity bytes: a little-endian
// uint64 payload length followed by the payload. The region has a stable
// name so peers in other address spaces can attach to it. Exactly one
// participant creates the region and is responsible for unlinking it;
// everybody else attaches and only detaches.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

// headerWidth is the size of the in-band payload length header.
const headerWidth = 8

// DefaultCapacity is the payload capacity used when none is given.
const DefaultCapacity = 8 * 1024 * 1024

// ErrSharedMemory wraps failures to create, attach or map a region.
var ErrSharedMemory = errors.New("shared memory error")

// Buffer is one mapped handle onto a named shared region. The creator
// handle must Unlink the name when the buffer is retired; attacher
// handles must only Close.
type Buffer struct {
	mu       sync.Mutex
	name     string
	f        *os.File
	mem      []byte // whole mapping: header + payload
	capacity int
	created  bool
	closed   bool
	unlinked bool
}

// Create makes a new shared region of the given payload capacity and
// returns the creator handle. An empty name generates a unique one.
// Creating a name that already exists fails.
func Create(name string, capacity int) (*Buffer, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if name == "" {
		name = "garnerd-" + uuid.NewString()
	}
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %w", ErrSharedMemory, name, err)
	}
	size := headerWidth + capacity
	if err = f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: size region %q: %w", ErrSharedMemory, name, err)
	}
	mem, err := mapRegion(f, size)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: map %q: %w", ErrSharedMemory, name, err)
	}
	b := &Buffer{name: name, f: f, mem: mem, capacity: capacity, created: true}
	// Backstop for handles dropped without Close/Unlink: a leaked name
	// outlives the process and is a correctness problem for the host.
	runtime.SetFinalizer(b, (*Buffer).finalize)
	return b, nil
}

// Attach opens an existing shared region by name and returns an attacher
// handle. Attaching to an absent name fails with ErrSharedMemory.
func Attach(name string) (*Buffer, error) {
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: attach %q: %w", ErrSharedMemory, name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat %q: %w", ErrSharedMemory, name, err)
	}
	size := int(fi.Size())
	if size < headerWidth {
		_ = f.Close()
		return nil, fmt.Errorf("%w: region %q too small (%d bytes)", ErrSharedMemory, name, size)
	}
	mem, err := mapRegion(f, size)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: map %q: %w", ErrSharedMemory, name, err)
	}
	b := &Buffer{name: name, f: f, mem: mem, capacity: size - headerWidth}
	runtime.SetFinalizer(b, (*Buffer).finalize)
	return b, nil
}

// Name returns the stable name peers attach by.
func (b *Buffer) Name() string {
	return b.name
}

// Cap returns the payload capacity in bytes.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Len reads the in-band header and returns the published payload length.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return b.loadLen()
}

// Full reports whether the buffer holds a full-capacity payload.
func (b *Buffer) Full() bool {
	return b.Len() >= b.capacity
}

func (b *Buffer) loadLen() int {
	n := binary.LittleEndian.Uint64(b.mem[:headerWidth])
	if n > uint64(b.capacity) {
		// A peer published garbage; clamp rather than hand out
		// payload bytes that do not exist.
		n = uint64(b.capacity)
	}
	return int(n)
}

// Write copies min(len(p), capacity) bytes to the payload origin, stores
// the copied count in the header and returns it. An oversize p truncates
// and reports the shorter count, it never overflows.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, fmt.Errorf("%w: write to closed buffer %q", ErrSharedMemory, b.name)
	}
	n := len(p)
	if n > b.capacity {
		n = b.capacity
	}
	copy(b.mem[headerWidth:headerWidth+n], p[:n])
	binary.LittleEndian.PutUint64(b.mem[:headerWidth], uint64(n))
	return n, nil
}

// Snapshot reads the header and returns the published payload bytes.
//
// The returned slice aliases the shared mapping: treat it as read only
// and do not hold it past the round it was taken in or past Close.
func (b *Buffer) Snapshot() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("%w: snapshot of closed buffer %q", ErrSharedMemory, b.name)
	}
	n := b.loadLen()
	return b.mem[headerWidth : headerWidth+n : headerWidth+n], nil
}

// Close detaches the mapping. Idempotent; safe on creator and attacher
// handles alike. A creator must still Unlink afterwards.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Buffer) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := unmapRegion(b.mem)
	b.mem = nil
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: close %q: %w", ErrSharedMemory, b.name, err)
	}
	return nil
}

// Unlink removes the name from the system. Only the creator handle may
// unlink, and only once; attacher handles get an error.
func (b *Buffer) Unlink() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unlinkLocked()
}

func (b *Buffer) unlinkLocked() error {
	if !b.created {
		return fmt.Errorf("%w: unlink of attached buffer %q", ErrSharedMemory, b.name)
	}
	if b.unlinked {
		return nil
	}
	b.unlinked = true
	if err := os.Remove(regionPath(b.name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: unlink %q: %w", ErrSharedMemory, b.name, err)
	}
	return nil
}

func (b *Buffer) finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.closeLocked()
	if b.created {
		_ = b.unlinkLocked()
	}
}

// Exists reports whether a region with this name is currently registered
// in the host.
func Exists(name string) bool {
	_, err := os.Stat(regionPath(name))
	return err == nil
}
