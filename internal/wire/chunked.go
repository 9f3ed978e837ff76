package wire

import (
	"bytes"
	"io"
	"strings"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// lineConn buffers partial reads from a Connection so chunk-size lines and
// exact byte runs can be pulled from the same byte stream; any bytes read
// past what was consumed are pushed back onto the Connection once the
// caller is done (flush, called once a body reader in stream.go hits its
// terminator).
type lineConn struct {
	conn  connio.Connection
	carry []byte
}

func (l *lineConn) fill() error {
	chunk, err := l.conn.Read()
	if err != nil {
		return err
	}
	if len(chunk) == 0 {
		return io.EOF
	}
	l.carry = append(l.carry, chunk...)
	return nil
}

// readLine reads up to and including the next "\r\n", returning the line
// without the terminator.
func (l *lineConn) readLine() (string, error) {
	for {
		if idx := bytes.Index(l.carry, []byte("\r\n")); idx >= 0 {
			line := string(l.carry[:idx])
			l.carry = l.carry[idx+2:]
			return line, nil
		}
		if err := l.fill(); err != nil {
			return "", err
		}
	}
}

// readSome reads at least one byte into p (blocking on the underlying
// Connection if the carry buffer is empty) and returns how many bytes it
// filled, without requiring p to be filled completely. Used by the
// streaming body readers in stream.go, which must not buffer more than
// the caller asked for.
func (l *lineConn) readSome(p []byte) (int, error) {
	if len(l.carry) == 0 {
		if err := l.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, l.carry)
	l.carry = l.carry[n:]
	return n, nil
}

// flush pushes any unconsumed bytes back onto the underlying Connection.
func (l *lineConn) flush() {
	if len(l.carry) > 0 {
		l.conn.Unread(l.carry)
		l.carry = nil
	}
}

// readTrailers parses the trailer headers that follow a chunked body's
// zero-size chunk.
func readTrailers(lc *lineConn) (urlmodel.Header, error) {
	h := urlmodel.NewHeader()
	for {
		line, err := lc.readLine()
		if err != nil {
			return urlmodel.Header{}, wrapFrameErr("reading chunk trailer", err)
		}
		if line == "" {
			return h, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		h.Add(strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]))
	}
}

func wrapFrameErr(op string, err error) error {
	if err == io.EOF {
		return httperr.ConnectionClosed(op, err)
	}
	if _, ok := err.(*httperr.Error); ok {
		return err
	}
	return httperr.ConnectionClosed(op, err)
}
