package urlmodel

import (
	"bytes"
	"io"
	"time"

	"github.com/gopherhttp/httpclient/internal/proxycfg"
)

// Source is a restartable lazy byte sequence: Open must be callable
// repeatedly, each time yielding the same bytes from the start. The
// request engine relies on this contract to replay a Stream body across
// a retry or a redirect.
type Source interface {
	Open() (io.ReadCloser, error)
}

// BytesSource adapts a plain []byte into a restartable Source.
type BytesSource []byte

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// RequestBody is the tagged body variant. Exactly one of the concrete
// types below is ever used for a given Request.
type RequestBody interface {
	isRequestBody()
}

// BytesBody carries a known-length body with bytes already in hand.
type BytesBody struct {
	Data []byte
}

func (BytesBody) isRequestBody() {}

// BuilderBody carries a known length with a writer callback that must emit
// exactly Len bytes.
type BuilderBody struct {
	Len    int64
	Writer func(w io.Writer) error
}

func (BuilderBody) isRequestBody() {}

// StreamBody carries a known length with a restartable lazy source that
// must produce exactly Len bytes each time it is opened.
type StreamBody struct {
	Len    int64
	Source Source
}

func (StreamBody) isRequestBody() {}

// StreamChunkedBody carries an unknown-length restartable source, sent
// using chunked transfer-encoding.
type StreamChunkedBody struct {
	Source Source
}

func (StreamChunkedBody) isRequestBody() {}

// NoBody is the zero-length request body (GET, HEAD, ...).
var NoBody RequestBody = BytesBody{}

// CheckStatusFunc inspects a response's status and headers and returns a
// non-nil error to reject it (propagated as StatusCodeException by the
// engine).
type CheckStatusFunc func(status int, headers Header) error

// DecompressFunc decides whether a given Content-Type should be
// gzip-decoded when Content-Encoding: gzip is present.
type DecompressFunc func(contentType string) bool

// BodyExceptionHandler is invoked when writing the request body fails; it
// returns true to swallow the error and attempt to read a response anyway
// (servers that answer 413 and drop the write side).
type BodyExceptionHandler func(err error) bool

// Request is the value callers build (directly, or via ParseURL) and pass
// to the request engine.
type Request struct {
	Method string
	Secure bool
	Host   string
	Port   int
	Path   string
	// Query is the opaque query string with the leading '?' stripped; it
	// is reinserted when the request-target is rendered.
	Query string

	Headers Header
	Body    RequestBody

	HTTPProxy  *proxycfg.HTTPProxy
	SOCKSProxy *proxycfg.SOCKSProxy

	// RawBody suppresses response decoding (gzip) when true.
	RawBody bool

	Decompress DecompressFunc

	// RedirectCount is the remaining redirect budget; 0 disables following.
	RedirectCount int

	CheckStatus CheckStatusFunc

	// ResponseTimeout bounds connect + send + receive-headers; zero means
	// no deadline.
	ResponseTimeout time.Duration

	// HTTPVersion defaults to "HTTP/1.1".
	HTTPVersion string

	OnBodyWriteError BodyExceptionHandler

	// ExpectContinue, when true, sends "Expect: 100-continue" and waits
	// up to the implementation's fixed budget before writing the body.
	ExpectContinue bool
}

// EffectiveHTTPVersion returns req.HTTPVersion, defaulting to HTTP/1.1.
func (r *Request) EffectiveHTTPVersion() string {
	if r.HTTPVersion == "" {
		return "HTTP/1.1"
	}
	return r.HTTPVersion
}

// RequestTarget renders the path + query string for the request line.
func (r *Request) RequestTarget() string {
	path := r.Path
	if path == "" {
		path = "/"
	}
	if r.Query == "" {
		return path
	}
	return path + "?" + r.Query
}
