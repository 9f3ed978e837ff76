package wire

import (
	"io"
	"strconv"
	"strings"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
)

// ChunkedBodyReader streams a chunked-transfer-encoded response body
// incrementally, one Read call at a time, instead of draining it all
// into a buffer up front; the body engine wraps this to expose the
// response body as a lazy byte sequence. Any bytes read past the final
// chunk's trailer are pushed back onto the Connection once EOF is
// reached.
type ChunkedBodyReader struct {
	lc        *lineConn
	remaining int64
	done      bool
	trailer   urlmodel.Header
}

// NewChunkedBodyReader begins decoding a chunked body from conn.
func NewChunkedBodyReader(conn connio.Connection) *ChunkedBodyReader {
	return &ChunkedBodyReader{lc: &lineConn{conn: conn}}
}

func (r *ChunkedBodyReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.remaining == 0 {
		line, err := r.lc.readLine()
		if err != nil {
			return 0, wrapFrameErr("reading chunk size", err)
		}
		sizeField := line
		if i := strings.IndexByte(line, ';'); i >= 0 {
			sizeField = line[:i]
		}
		sizeField = strings.TrimSpace(sizeField)
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil || size < 0 {
			return 0, httperr.InvalidChunkHeaders("invalid chunk size: " + line)
		}
		if size == 0 {
			trailer, err := readTrailers(r.lc)
			if err != nil {
				return 0, err
			}
			r.trailer = trailer
			r.done = true
			r.lc.flush()
			return 0, io.EOF
		}
		r.remaining = size
	}

	take := p
	if int64(len(take)) > r.remaining {
		take = take[:r.remaining]
	}
	n, err := r.lc.readSome(take)
	r.remaining -= int64(n)
	if err != nil {
		return n, wrapFrameErr("reading chunk body", err)
	}
	if r.remaining == 0 {
		crlf, err := r.lc.readLine()
		if err != nil {
			return n, wrapFrameErr("reading chunk terminator", err)
		}
		if crlf != "" {
			return n, httperr.InvalidChunkHeaders("missing CRLF after chunk data")
		}
	}
	return n, nil
}

// Trailer returns the trailer headers parsed after the zero-size chunk.
// It is only populated once Read has returned io.EOF.
func (r *ChunkedBodyReader) Trailer() urlmodel.Header { return r.trailer }

// ContentLengthBodyReader streams exactly N bytes from conn.
type ContentLengthBodyReader struct {
	lc        *lineConn
	remaining int64
}

// NewContentLengthBodyReader begins reading an n-byte body from conn.
func NewContentLengthBodyReader(conn connio.Connection, n int64) *ContentLengthBodyReader {
	return &ContentLengthBodyReader{lc: &lineConn{conn: conn}, remaining: n}
}

func (r *ContentLengthBodyReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		r.lc.flush()
		return 0, io.EOF
	}
	take := p
	if int64(len(take)) > r.remaining {
		take = take[:r.remaining]
	}
	n, err := r.lc.readSome(take)
	r.remaining -= int64(n)
	if err != nil {
		return n, wrapFrameErr("reading fixed-length body", err)
	}
	if r.remaining == 0 {
		r.lc.flush()
	}
	return n, nil
}

// UntilCloseBodyReader streams a response body with no framing header at
// all, ending at connection EOF. The caller must always release the
// underlying connection with DontReuse afterward.
type UntilCloseBodyReader struct {
	conn connio.Connection
}

// NewUntilCloseBodyReader wraps conn for a read-until-EOF body.
func NewUntilCloseBodyReader(conn connio.Connection) *UntilCloseBodyReader {
	return &UntilCloseBodyReader{conn: conn}
}

func (r *UntilCloseBodyReader) Read(p []byte) (int, error) {
	chunk, err := r.conn.Read()
	if err != nil {
		return 0, err
	}
	if len(chunk) == 0 {
		return 0, io.EOF
	}
	n := copy(p, chunk)
	if n < len(chunk) {
		r.conn.Unread(chunk[n:])
	}
	return n, nil
}
