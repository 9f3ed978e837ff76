package body

import (
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/httperr"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
	"github.com/gopherhttp/httpclient/internal/wire"
)

// Framing identifies which response-body framing rule applies.
type Framing int

const (
	FramingEmpty Framing = iota
	FramingChunked
	FramingContentLength
	FramingUntilClose
)

// NeedsNoBody reports whether method/status mandates an empty body
// (HEAD, 1xx, 204, 304) regardless of any framing header present.
func NeedsNoBody(method string, status int) bool {
	if strings.EqualFold(method, "HEAD") {
		return true
	}
	if status >= 100 && status < 200 {
		return true
	}
	return status == 204 || status == 304
}

// SelectFraming picks the body framing in priority order: mandatory-empty
// (HEAD, 1xx, 204, 304), then chunked transfer-encoding, then
// Content-Length, then read-until-close.
func SelectFraming(method string, status int, h urlmodel.Header) (Framing, int64, error) {
	if NeedsNoBody(method, status) {
		return FramingEmpty, 0, nil
	}

	te := h.Get("Transfer-Encoding")
	cl := h.Get("Content-Length")
	chunked := strings.Contains(strings.ToLower(te), "chunked")

	if chunked && cl != "" {
		return 0, 0, httperr.ResponseLengthAndChunkingBothUsed()
	}
	if chunked {
		return FramingChunked, 0, nil
	}
	if cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, httperr.InvalidHeader("Content-Length: " + cl)
		}
		return FramingContentLength, n, nil
	}
	return FramingUntilClose, 0, nil
}

// DrainResult summarizes how a Response body read ended, so the request
// engine can compute the correct pool release disposition.
type DrainResult struct {
	// Drained is true once the framer reached its natural terminator
	// (content-length exhausted, or the zero chunk consumed).
	Drained bool
	// FramingAnomaly is true if a read returned any error other than a
	// clean io.EOF at the terminator.
	FramingAnomaly bool
	// ForceDontReuse is true for FramingUntilClose bodies, which always
	// release DontReuse regardless of how the read ended; the connection
	// has no usable framing boundary left.
	ForceDontReuse bool
}

// trailerSource is implemented by readers that expose trailer headers
// once fully drained (ChunkedBodyReader, and lazyGzipReader, which
// passes through the trailers of the reader it wraps).
type trailerSource interface {
	Trailer() urlmodel.Header
}

// Response is the lazy, finite byte sequence exposed to callers as a
// Response's body. Read pulls bytes on demand straight off the
// Connection (through gzip, when applicable); Close releases the
// Connection back to the Manager via the notify callback exactly once,
// whether the caller drained the body or abandoned it early.
type Response struct {
	src     io.Reader
	notify  func(DrainResult)
	once    sync.Once
	drained bool
	anomaly bool
	force   bool
}

func (b *Response) Read(p []byte) (int, error) {
	n, err := b.src.Read(p)
	switch {
	case err == io.EOF:
		b.drained = true
	case err != nil:
		b.anomaly = true
	}
	return n, err
}

// Close notifies the release callback. Safe to call more than once and
// safe to call without having drained the body (a caller abandoning a
// streaming response early).
func (b *Response) Close() error {
	b.once.Do(func() {
		b.notify(DrainResult{Drained: b.drained, FramingAnomaly: b.anomaly, ForceDontReuse: b.force})
	})
	return nil
}

// Trailer returns trailer headers parsed after a chunked body's zero
// chunk. Empty until the body has been fully drained, and always empty
// for non-chunked framings.
func (b *Response) Trailer() urlmodel.Header {
	if ts, ok := b.src.(trailerSource); ok {
		return ts.Trailer()
	}
	return urlmodel.Header{}
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

// NewResponseBody selects the response's framing, wires up the matching
// streaming reader over conn, applies gzip-on-the-fly decoding when
// warranted, and returns the resulting lazy body plus the header set the
// caller should see (Content-Encoding/Content-Length stripped when gzip
// was applied). notify is invoked exactly once, when the returned
// Response is closed, with enough information for the caller to compute
// the pool release disposition.
func NewResponseBody(
	conn connio.Connection,
	method string,
	status int,
	headers urlmodel.Header,
	rawBody bool,
	decompress urlmodel.DecompressFunc,
	notify func(DrainResult),
) (*Response, urlmodel.Header, error) {
	framing, length, err := SelectFraming(method, status, headers)
	if err != nil {
		return nil, headers, err
	}

	out := headers.Clone()

	if framing == FramingEmpty {
		return &Response{src: emptyReader{}, notify: notify, drained: true}, out, nil
	}

	var src io.Reader
	switch framing {
	case FramingChunked:
		src = wire.NewChunkedBodyReader(conn)
	case FramingContentLength:
		src = wire.NewContentLengthBodyReader(conn, length)
	default:
		src = wire.NewUntilCloseBodyReader(conn)
	}

	gzipped := !rawBody &&
		strings.EqualFold(out.Get("Content-Encoding"), "gzip") &&
		decompress != nil && decompress(out.Get("Content-Type"))
	if gzipped {
		out.Del("Content-Encoding")
		out.Del("Content-Length")
		src = &lazyGzipReader{inner: src}
	}

	return &Response{
		src:    src,
		notify: notify,
		force:  framing == FramingUntilClose,
	}, out, nil
}

// lazyGzipReader defers gzip.NewReader (which reads and validates the
// gzip header up front) until the body is actually read, so no header
// I/O happens at response-construction time.
type lazyGzipReader struct {
	inner io.Reader
	gz    *gzip.Reader
	err   error
}

func (l *lazyGzipReader) Read(p []byte) (int, error) {
	if l.gz == nil && l.err == nil {
		l.gz, l.err = gzip.NewReader(l.inner)
		if l.err != nil {
			l.err = httperr.InternalIOException("gzip_open", l.err)
		}
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.gz.Read(p)
}

// Trailer delegates through to the wrapped chunked reader, if any, so a
// gzip-wrapped chunked body still exposes its trailer headers.
func (l *lazyGzipReader) Trailer() urlmodel.Header {
	if ts, ok := l.inner.(trailerSource); ok {
		return ts.Trailer()
	}
	return urlmodel.Header{}
}
