// Package connio provides a uniform Connection abstraction over TCP and
// TLS sockets. The Connection has no notion of HTTP framing; the wire
// parser and body engine built on top of it own that.
package connio

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gopherhttp/httpclient/internal/httperr"
)

// DefaultChunk is the default read chunk size.
const DefaultChunk = 8 * 1024

// Connection is the opaque handle the rest of the library reads and
// writes through. It never looks at HTTP semantics.
type Connection interface {
	// Read returns up to DefaultChunk bytes, or an empty slice on EOF.
	Read() ([]byte, error)
	// ReadExactly blocks until exactly n bytes have been read.
	ReadExactly(n int) ([]byte, error)
	// Unread pushes bytes back so a subsequent Read/ReadExactly observes
	// them first; used by the header parser to return unconsumed bytes
	// past the "\r\n\r\n" boundary.
	Unread(b []byte)
	Write(b []byte) (int, error)
	Close() error

	// SetDeadline applies to both pending and future I/O; used by the
	// request engine to bound connect+send+receive-headers as one budget.
	SetDeadline(t time.Time) error

	// LocalAddr/RemoteAddr expose socket endpoints for response metadata.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// conn wraps any net.Conn (raw TCP or *tls.Conn, which also implements
// net.Conn) uniformly.
type conn struct {
	nc       net.Conn
	pushback []byte
}

// New wraps an established net.Conn (TCP or TLS) as a Connection.
func New(nc net.Conn) Connection {
	return &conn{nc: nc}
}

func (c *conn) Read() ([]byte, error) {
	if len(c.pushback) > 0 {
		b := c.pushback
		c.pushback = nil
		return b, nil
	}
	buf := make([]byte, DefaultChunk)
	n, err := c.nc.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if isEOF(err) {
		return nil, nil
	}
	return nil, httperr.InternalIOException("read", err)
}

func (c *conn) ReadExactly(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if len(c.pushback) > 0 {
			take := c.pushback
			if len(take) > n-len(out) {
				take = take[:n-len(out)]
			}
			out = append(out, take...)
			c.pushback = c.pushback[len(take):]
			if len(c.pushback) == 0 {
				c.pushback = nil
			}
			continue
		}
		buf := make([]byte, n-len(out))
		read, err := c.nc.Read(buf)
		if read > 0 {
			out = append(out, buf[:read]...)
		}
		if err != nil {
			if len(out) < n {
				return out, httperr.ConnectionClosed("read_exactly", err)
			}
			break
		}
	}
	return out, nil
}

func (c *conn) Unread(b []byte) {
	if len(b) == 0 {
		return
	}
	c.pushback = append(append([]byte(nil), b...), c.pushback...)
}

func (c *conn) Write(b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := c.nc.Write(b[written:])
		written += n
		if err != nil {
			return written, httperr.InternalIOException("write", err)
		}
	}
	return written, nil
}

func (c *conn) Close() error { return c.nc.Close() }

func (c *conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

func (c *conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
