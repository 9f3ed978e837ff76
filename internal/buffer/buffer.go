// Package buffer accumulates the body HTTPLbs fully drains from a
// Response: in memory up to a threshold, then spilled to a temp file,
// capped overall at constants.MaxContentLength so a response with no
// declared Content-Length (read-until-EOF framing) can't grow the
// buffer without bound before the caller ever sees an error.
package buffer

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/httperr"
)

// DefaultMemoryLimit is the in-memory threshold New uses when given a
// non-positive limit, before it starts spilling to disk.
const DefaultMemoryLimit = constants.DefaultBodyMemLimit

// Buffer accumulates one response body: in memory while under limit,
// spilled to a temp file beyond it, and refusing further writes once the
// total reaches constants.MaxContentLength regardless of where it's
// currently stored.
type Buffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// New creates a Buffer that holds up to limit bytes in memory (or
// DefaultMemoryLimit, if limit is non-positive) before spilling the rest
// to a temp file.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Write stores p, spilling to disk once the in-memory threshold is
// crossed. It refuses to store any bytes past constants.MaxContentLength
// in total, whether or not the buffer has already spilled.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, httperr.NewIOError("buffer is closed", nil)
	}

	if b.size+int64(len(p)) > constants.MaxContentLength {
		return 0, httperr.NewIOError("buffered body exceeds the maximum response size", nil)
	}
	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "httpclient-buffer-*.tmp")
		if err != nil {
			return 0, httperr.NewIOError("creating temp file", err)
		}

		// Store the file reference immediately so Close still cleans it
		// up if the write-out below fails.
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				return 0, httperr.NewIOError("writing to temp file", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, httperr.NewIOError("writing to temp file", err)
	}
	return n, nil
}

// Bytes returns the in-memory data. Once the buffer has spilled to disk
// this is always nil; callers must use Reader instead.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the total number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled reports whether the buffer has moved its contents to a temp
// file.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader opens a fresh reader over everything written so far. Each call
// returns an independent reader positioned at the start.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, httperr.NewIOError("buffer is closed", nil)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, httperr.NewIOError("syncing temp file", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, httperr.NewIOError("opening temp file for reading", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close closes and removes the spill file, if any. Safe to call more
// than once.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = httperr.NewIOError("removing temp file", removeErr)
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return httperr.NewIOError("closing temp file", err)
		}
	}
	return nil
}
