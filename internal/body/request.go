// Package body implements the body engine: request body serialization
// (identity, builder, streamed, streamed-chunked) and response body
// framing (identity/content-length/chunked, with gzip-on-the-fly
// decoding layered on top).
package body

import (
	"io"
	"strconv"
	"time"

	"github.com/gopherhttp/httpclient/internal/connio"
	"github.com/gopherhttp/httpclient/internal/constants"
	"github.com/gopherhttp/httpclient/internal/urlmodel"
	"github.com/gopherhttp/httpclient/internal/wire"
)

// PrepareHeaders sets the Content-Length or Transfer-Encoding header that
// req.Body implies, removing whatever the caller may have set directly;
// these are always computed, never taken from the caller's headers.
func PrepareHeaders(h *urlmodel.Header, reqBody urlmodel.RequestBody) {
	h.Del("Content-Length")
	h.Del("Transfer-Encoding")
	switch b := reqBody.(type) {
	case urlmodel.BytesBody:
		h.Set("Content-Length", strconv.Itoa(len(b.Data)))
	case urlmodel.BuilderBody:
		h.Set("Content-Length", strconv.FormatInt(b.Len, 10))
	case urlmodel.StreamBody:
		h.Set("Content-Length", strconv.FormatInt(b.Len, 10))
	case urlmodel.StreamChunkedBody:
		h.Set("Transfer-Encoding", "chunked")
	}
}

// connWriter adapts connio.Connection to io.Writer for BuilderBody writers.
type connWriter struct{ conn connio.Connection }

func (w connWriter) Write(p []byte) (int, error) { return w.conn.Write(p) }

// WriteBody writes req's body (already framed by PrepareHeaders) onto
// conn. StreamBody/StreamChunkedBody sources are opened fresh each call,
// satisfying the restartable-source contract on retry or redirect.
func WriteBody(conn connio.Connection, reqBody urlmodel.RequestBody) error {
	switch b := reqBody.(type) {
	case urlmodel.BytesBody:
		if len(b.Data) == 0 {
			return nil
		}
		_, err := conn.Write(b.Data)
		return err
	case urlmodel.BuilderBody:
		if b.Writer == nil {
			return nil
		}
		return b.Writer(connWriter{conn})
	case urlmodel.StreamBody:
		return copyFromSource(conn, b.Source)
	case urlmodel.StreamChunkedBody:
		return writeChunkedFromSource(conn, b.Source)
	default:
		return nil
	}
}

func copyFromSource(conn connio.Connection, src urlmodel.Source) error {
	if src == nil {
		return nil
	}
	r, err := src.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func writeChunkedFromSource(conn connio.Connection, src urlmodel.Source) error {
	if src == nil {
		_, err := conn.Write([]byte("0\r\n\r\n"))
		return err
	}
	r, err := src.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			header := strconv.FormatInt(int64(n), 16) + "\r\n"
			if _, werr := conn.Write([]byte(header)); werr != nil {
				return werr
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return werr
			}
			if _, werr := conn.Write([]byte("\r\n")); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			_, werr := conn.Write([]byte("0\r\n\r\n"))
			return werr
		}
		if rerr != nil {
			return rerr
		}
	}
}

// AwaitContinue implements the "Expect: 100-continue" wait: up to
// constants.Expect100Timeout for a "100 Continue" status before the body
// is written. If a 4xx/5xx status arrives instead, it is returned as
// early so the engine can propagate it as the final response without
// writing the body or re-reading the status line. A timeout proceeds as
// if 100 Continue had arrived (the conservative, body-gets-sent default).
func AwaitContinue(conn connio.Connection) (early *wire.StatusHeaders, err error) {
	if derr := conn.SetDeadline(time.Now().Add(constants.Expect100Timeout)); derr != nil {
		return nil, nil
	}
	defer conn.SetDeadline(time.Time{})

	sh, rerr := wire.ReadStatusHeaders(conn)
	if rerr != nil {
		if isTimeoutErr(rerr) {
			return nil, nil
		}
		return nil, rerr
	}
	if sh.Status == 100 {
		return nil, nil
	}
	// Any other status (a 4xx/5xx rejection, or a server skipping straight
	// to the final response) is handed back as the response in full; the
	// engine must not attempt to read status+headers again.
	return sh, nil
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(timeouter); ok && t.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return false
}
